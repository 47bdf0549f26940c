package cli

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/buemura/sectools/internal/export"
	"github.com/buemura/sectools/internal/output"
	"github.com/buemura/sectools/pkg/types"
	"github.com/spf13/cobra"
)

var extFormats = map[string]string{
	".csv":  "csv",
	".json": "json",
	".md":   "markdown",
	".html": "html",
	".htm":  "html",
	".txt":  "table",
}

// formatFor picks the output format: an explicit --output wins, then the
// file extension, then the configured default.
func formatFor(cmd *cobra.Command, file string) string {
	if cmd.Flags().Changed("output") || file == "" {
		return appConfig.OutputFormat
	}
	if f, ok := extFormats[strings.ToLower(filepath.Ext(file))]; ok {
		return f
	}
	return appConfig.OutputFormat
}

// writeReport renders rep to file, or to stdout when file is empty. An
// existing file is never overwritten.
func writeReport(cmd *cobra.Command, rep *types.Report, file string) error {
	formatter, err := output.GetFormatter(formatFor(cmd, file))
	if err != nil {
		return err
	}
	if file == "" {
		return formatter.Format(cmd.OutOrStdout(), rep)
	}
	err = export.WriteWith(file, func(w io.Writer) error {
		return formatter.Format(w, rep)
	})
	if err != nil {
		return err
	}
	logger.Info("saved report", "file", file, "rows", len(rep.Rows))
	return nil
}
