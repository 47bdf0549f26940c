package cli

import (
	"fmt"
	"time"

	"github.com/buemura/sectools/internal/export"
	"github.com/buemura/sectools/internal/reconcile"
	"github.com/buemura/sectools/internal/report"
	"github.com/buemura/sectools/internal/report/accepts"
	"github.com/spf13/cobra"
)

var (
	acceptsOutputFileFlag string
	acceptsDeleteFlag     bool
	acceptsYesFlag        bool
)

var acceptsCmd = &cobra.Command{
	Use:   "accepts",
	Short: "Manage vulnerability risk accepts",
}

var acceptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every risk accept",
	Long:  "Lists risk-accept definitions. With --output-file the raw definitions are saved as JSON.",
	Args:  cobra.NoArgs,
	RunE:  runAcceptsList,
}

var acceptsCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Find risk accepts whose image is no longer running",
	Long: `Finds image-scoped risk accepts (CVE accepts with an imageName context and
whole-image accepts) whose image does not appear in any runtime result.
Orphans are reported, optionally saved with --output-file, and deleted
only with --delete.`,
	Args: cobra.NoArgs,
	RunE: runAcceptsCleanup,
}

var acceptsDeleteAllCmd = &cobra.Command{
	Use:   "delete-all",
	Short: "Delete every vulnerability risk accept",
	Args:  cobra.NoArgs,
	RunE:  runAcceptsDeleteAll,
}

func init() {
	acceptsListCmd.Flags().StringVar(&acceptsOutputFileFlag, "output-file", "", "save the definitions as JSON to this file (must not exist)")
	acceptsCleanupCmd.Flags().StringVar(&acceptsOutputFileFlag, "output-file", "", "save the orphaned definitions as JSON to this file (must not exist)")
	acceptsCleanupCmd.Flags().BoolVar(&acceptsDeleteFlag, "delete", false, "delete the orphaned accepts")
	acceptsDeleteAllCmd.Flags().BoolVar(&acceptsYesFlag, "yes", false, "confirm deletion of every vulnerability accept")

	acceptsCmd.AddCommand(acceptsListCmd)
	acceptsCmd.AddCommand(acceptsCleanupCmd)
	acceptsCmd.AddCommand(acceptsDeleteAllCmd)
	rootCmd.AddCommand(acceptsCmd)
}

func checkOutputFile() error {
	if acceptsOutputFileFlag == "" {
		return nil
	}
	return export.CheckAbsent(acceptsOutputFileFlag)
}

func runAcceptsList(cmd *cobra.Command, args []string) error {
	started := time.Now()
	if err := checkOutputFile(); err != nil {
		return err
	}
	session, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := runContext(cmd)
	defer cancel()

	if acceptsOutputFileFlag != "" {
		defs, err := accepts.List(ctx, session)
		if err != nil {
			return err
		}
		logger.Info("found vulnerability risk accepts", "count", len(defs))
		if err := export.WriteJSON(acceptsOutputFileFlag, defs); err != nil {
			return err
		}
		logger.Info("saved risk accepts", "file", acceptsOutputFileFlag)
		return finishRun(cmd, session, len(defs), started)
	}

	rep, err := accepts.New().Run(ctx, session, report.Options{Logger: logger})
	if err != nil {
		return err
	}
	if err := writeReport(cmd, rep, ""); err != nil {
		return err
	}
	return finishRun(cmd, session, len(rep.Rows), started)
}

func runAcceptsCleanup(cmd *cobra.Command, args []string) error {
	started := time.Now()
	if err := checkOutputFile(); err != nil {
		return err
	}
	session, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := runContext(cmd)
	defer cancel()

	logger.Info("retrieving the runtime scan results")
	results, err := accepts.RunningResults(ctx, session)
	if err != nil {
		return err
	}
	running := reconcile.RunningImages(results, "")
	logger.Info("found running images", "images", len(running), "results", len(results))

	defs, err := accepts.List(ctx, session)
	if err != nil {
		return err
	}
	logger.Info("found vulnerability risk accepts", "count", len(defs))

	index, err := reconcile.BuildExceptionIndex(defs)
	if err != nil {
		return err
	}
	logger.Info("found images with vulnerability risk accepts", "images", len(index))

	orphans := reconcile.FindOrphans(running, index)
	logger.Info("found orphaned risk accepts", "images", len(orphans), "accepts", orphans.Count())

	out := cmd.OutOrStdout()
	for _, image := range orphans.Images() {
		fmt.Fprintf(out, "%s\t%v\n", image, orphans[image])
	}

	if len(orphans) == 0 {
		if acceptsOutputFileFlag != "" {
			logger.Info("there is nothing to save", "file", acceptsOutputFileFlag)
		}
		logger.Info("no orphaned image vulnerability risk accepts found")
		return finishRun(cmd, session, 0, started)
	}

	if acceptsOutputFileFlag != "" {
		if err := export.WriteJSON(acceptsOutputFileFlag, reconcile.SelectEntries(defs, orphans)); err != nil {
			return err
		}
		logger.Info("saved orphaned risk accepts", "file", acceptsOutputFileFlag)
	}

	if !acceptsDeleteFlag {
		logger.Info("skipping delete of orphaned vulnerability risk accepts")
		return finishRun(cmd, session, orphans.Count(), started)
	}

	logger.Info("deleting orphaned image vulnerability risk accepts")
	n, err := reconcile.DeleteOrphans(ctx, session, accepts.DefinitionsPath, orphans, logger)
	if err != nil {
		return fmt.Errorf("deleted %d accepts before failing: %w", n, err)
	}
	logger.Info("deleted orphaned image vulnerability risk accepts", "count", n)
	return finishRun(cmd, session, orphans.Count(), started)
}

func runAcceptsDeleteAll(cmd *cobra.Command, args []string) error {
	started := time.Now()
	if !acceptsYesFlag {
		return fmt.Errorf("refusing to delete every vulnerability accept without --yes")
	}
	session, err := newSession()
	if err != nil {
		return err
	}
	ctx, cancel := runContext(cmd)
	defer cancel()

	defs, err := accepts.List(ctx, session)
	if err != nil {
		return err
	}
	ids, err := reconcile.VulnerabilityAcceptIDs(defs)
	if err != nil {
		return err
	}
	logger.Info("deleting vulnerability risk accepts", "count", len(ids))

	n, err := reconcile.DeleteIDs(ctx, session, accepts.DefinitionsPath, ids, logger)
	if err != nil {
		return fmt.Errorf("deleted %d accepts before failing: %w", n, err)
	}
	logger.Info("deleted vulnerability risk accepts", "count", n)
	return finishRun(cmd, session, n, started)
}
