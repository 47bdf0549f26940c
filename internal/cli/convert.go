package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/buemura/sectools/internal/convert"
	"github.com/buemura/sectools/pkg/types"
	"github.com/spf13/cobra"
)

var (
	convertFileFlag string
	splitLinesFlag  int
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert local scanner output and logs",
}

func init() {
	convertCmd.PersistentFlags().StringVarP(&convertFileFlag, "file", "f", "", "write the report to this file (must not exist)")

	convertCmd.AddCommand(&cobra.Command{
		Use:   "cli-vulns FILE",
		Short: "Vulnerabilities from sysdig-cli-scanner JSON output",
		Args:  cobra.ExactArgs(1),
		RunE:  convertWith(convert.CLIScanVulns),
	})
	convertCmd.AddCommand(&cobra.Command{
		Use:   "cli-pkgs FILE",
		Short: "Packages from sysdig-cli-scanner JSON output",
		Args:  cobra.ExactArgs(1),
		RunE:  convertWith(convert.CLIScanPackages),
	})
	convertCmd.AddCommand(&cobra.Command{
		Use:   "logs FILE",
		Short: "Flatten a JSON-lines log (runtime scanner, cluster shield) into columns",
		Args:  cobra.ExactArgs(1),
		RunE:  convertWith(convert.JSONLines),
	})

	splitCmd := &cobra.Command{
		Use:   "split FILE",
		Short: "Split a large file into FILE.1, FILE.2, ...",
		Args:  cobra.ExactArgs(1),
		RunE:  runSplit,
	}
	splitCmd.Flags().IntVar(&splitLinesFlag, "lines", convert.DefaultSplitLines, "lines per output file")
	convertCmd.AddCommand(splitCmd)

	rootCmd.AddCommand(convertCmd)
}

func convertWith(conv func(io.Reader) (*types.Report, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer in.Close()

		rep, err := conv(in)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		return writeReport(cmd, rep, convertFileFlag)
	}
}

func runSplit(cmd *cobra.Command, args []string) error {
	files, err := convert.Split(args[0], splitLinesFlag)
	for _, f := range files {
		fmt.Fprintln(cmd.OutOrStdout(), f)
	}
	return err
}
