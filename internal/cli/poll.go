package cli

import (
	"time"

	"github.com/buemura/sectools/internal/poll"
	"github.com/spf13/cobra"
)

var (
	pollURLFlag      string
	pollCommandFlag  string
	pollIntervalFlag time.Duration
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Wait until a query returns no results, then run a command",
	Long: `Polls --url until the response reports page.returned == 0, then runs
--command once. The URL may be an API path or an absolute URL.`,
	Args: cobra.NoArgs,
	RunE: runPoll,
}

func init() {
	pollCmd.Flags().StringVar(&pollURLFlag, "url", "", "API path or URL to poll")
	pollCmd.Flags().StringVar(&pollCommandFlag, "command", "", "command line to run when no results are left")
	pollCmd.Flags().DurationVar(&pollIntervalFlag, "interval", poll.DefaultInterval, "wait between polls")
	_ = pollCmd.MarkFlagRequired("url")
	_ = pollCmd.MarkFlagRequired("command")

	rootCmd.AddCommand(pollCmd)
}

func runPoll(cmd *cobra.Command, args []string) error {
	started := time.Now()
	session, err := newSession()
	if err != nil {
		return err
	}
	p, err := poll.New(session, poll.Options{
		URL:      pollURLFlag,
		Command:  pollCommandFlag,
		Interval: pollIntervalFlag,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := runContext(cmd)
	defer cancel()

	polls, err := p.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("no results left", "polls", polls)
	return finishRun(cmd, session, -1, started)
}
