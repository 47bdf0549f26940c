package cli

import (
	"fmt"
	"time"

	"github.com/buemura/sectools/internal/export"
	"github.com/buemura/sectools/internal/filter"
	"github.com/buemura/sectools/internal/report"
	"github.com/buemura/sectools/internal/report/accepts"
	"github.com/buemura/sectools/internal/report/agents"
	"github.com/buemura/sectools/internal/report/images"
	"github.com/buemura/sectools/internal/report/workload"
	"github.com/spf13/cobra"
)

var (
	reportFileFlag  string
	reportWhereFlag string
	imageFilterFlag string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build a report from the Secure API",
	Long: `Builds one of the available reports. The --where flag takes a CEL
expression evaluated against each raw API record bound to "record",
for example: record.scope["kubernetes.cluster.name"] == "prod".`,
}

func newRegistry() *report.Registry {
	reg := report.NewRegistry()
	reg.Register(workload.New())
	reg.Register(images.New())
	reg.Register(accepts.New())
	reg.Register(agents.New())
	return reg
}

func init() {
	reportCmd.PersistentFlags().StringVarP(&reportFileFlag, "file", "f", "", "write the report to this file (must not exist)")
	reportCmd.PersistentFlags().StringVar(&reportWhereFlag, "where", "", "CEL expression selecting records")

	for _, r := range newRegistry().All() {
		name := r.Name()
		sub := &cobra.Command{
			Use:   name,
			Short: r.Description(),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runReport(cmd, name)
			},
		}
		if name == "images" {
			sub.Flags().StringVar(&imageFilterFlag, images.ArgImageFilter, "", "free text image name filter")
			_ = sub.MarkFlagRequired(images.ArgImageFilter)
		}
		reportCmd.AddCommand(sub)
	}
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, name string) error {
	started := time.Now()
	if reportFileFlag != "" {
		if err := export.CheckAbsent(reportFileFlag); err != nil {
			return err
		}
	}

	opts := report.Options{
		ExtraArgs: map[string]string{images.ArgImageFilter: imageFilterFlag},
		Logger:    logger,
		Progress:  printer,
	}
	if reportWhereFlag != "" {
		f, err := filter.Compile(reportWhereFlag)
		if err != nil {
			return fmt.Errorf("invalid --where: %w", err)
		}
		opts.Where = f
	}

	session, err := newSession()
	if err != nil {
		return err
	}

	ctx, cancel := runContext(cmd)
	defer cancel()

	rep, err := report.NewRunner(newRegistry(), session).RunOne(ctx, name, opts)
	if err != nil {
		return err
	}
	if err := writeReport(cmd, rep, reportFileFlag); err != nil {
		return err
	}
	return finishRun(cmd, session, len(rep.Rows), started)
}
