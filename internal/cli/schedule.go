package cli

import (
	"fmt"
	"time"

	"github.com/buemura/sectools/internal/schedule"
	"github.com/spf13/cobra"
)

var (
	scheduleNameFlag       string
	scheduleDirFlag        string
	scheduleDecompressFlag bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Work with scheduled reports",
}

var scheduleDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the last completed report of a schedule",
	Long: `Looks up a report schedule by name and downloads its last completed
report as <name>-<timestamp>.<format>.gz. Existing files are never
overwritten.`,
	Args: cobra.NoArgs,
	RunE: runScheduleDownload,
}

func init() {
	scheduleDownloadCmd.Flags().StringVar(&scheduleNameFlag, "name", "", "schedule name")
	scheduleDownloadCmd.Flags().StringVar(&scheduleDirFlag, "dir", ".", "directory to save the report in")
	scheduleDownloadCmd.Flags().BoolVar(&scheduleDecompressFlag, "decompress", false, "gunzip the downloaded report")
	_ = scheduleDownloadCmd.MarkFlagRequired("name")

	scheduleCmd.AddCommand(scheduleDownloadCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleDownload(cmd *cobra.Command, args []string) error {
	started := time.Now()
	session, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := runContext(cmd)
	defer cancel()

	path, err := schedule.Download(ctx, session, schedule.Options{
		Name:       scheduleNameFlag,
		Token:      session.Token(),
		Dir:        scheduleDirFlag,
		Decompress: scheduleDecompressFlag,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return finishRun(cmd, session, -1, started)
}
