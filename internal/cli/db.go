package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/buemura/sectools/internal/store"
	"github.com/spf13/cobra"
)

var (
	dbPathFlag      string
	dbFileFlag      string
	infraPrefixFlag string
	basePrefixFlag  string
	fixDaysFlag     int
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Load workload reports into SQLite and compute metrics",
}

var dbLoadCmd = &cobra.Command{
	Use:   "load CSV",
	Short: "Load a workload report CSV into the database",
	Long:  "Loads a CSV written by 'report workloads'. A new database is created when the file does not exist.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDBLoad,
}

var dbMetricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Report running images with long-fixable Critical and High findings",
	Args:  cobra.NoArgs,
	RunE:  runDBMetrics,
}

func init() {
	dbCmd.PersistentFlags().StringVar(&dbPathFlag, "db", store.DefaultPath, "SQLite database file")
	dbMetricsCmd.Flags().StringVarP(&dbFileFlag, "file", "f", "", "write the metrics report to this file (must not exist)")
	dbMetricsCmd.Flags().StringVar(&infraPrefixFlag, "infra-prefix", "", "image name prefix of infrastructure images")
	dbMetricsCmd.Flags().StringVar(&basePrefixFlag, "base-prefix", "", "image name prefix of base images")
	dbMetricsCmd.Flags().IntVar(&fixDaysFlag, "days", store.DefaultFixAgeDays, "days a fix must have been available")

	dbCmd.AddCommand(dbLoadCmd)
	dbCmd.AddCommand(dbMetricsCmd)
	rootCmd.AddCommand(dbCmd)
}

func openOrCreate(cmd *cobra.Command, path string) (*store.Store, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Info("creating database", "db", path)
		return store.Create(cmd.Context(), path)
	}
	return store.Open(path)
}

func runDBLoad(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening CSV: %w", err)
	}
	defer in.Close()

	s, err := openOrCreate(cmd, dbPathFlag)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.LoadCSV(cmd.Context(), in)
	if err != nil {
		return err
	}
	logger.Info("loaded report rows", "rows", n, "db", dbPathFlag)
	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows into %s\n", n, dbPathFlag)
	return nil
}

func runDBMetrics(cmd *cobra.Command, args []string) error {
	s, err := store.Open(dbPathFlag)
	if err != nil {
		return err
	}
	defer s.Close()

	rep, err := s.Metrics(cmd.Context(), store.MetricsOptions{
		Days:        fixDaysFlag,
		InfraPrefix: infraPrefixFlag,
		BasePrefix:  basePrefixFlag,
	})
	if err != nil {
		return err
	}
	return writeReport(cmd, rep, dbFileFlag)
}
