package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buemura/sectools/internal/config"
	"github.com/buemura/sectools/internal/observability"
	"github.com/buemura/sectools/internal/progress"
	"github.com/buemura/sectools/internal/secure"
	"github.com/buemura/sectools/pkg/types"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	authorityFlag   string
	tokenFlag       string
	outputFlag      string
	verboseFlag     bool
	timeoutFlag     time.Duration
	backoffFlag     time.Duration
	maxRetriesFlag  int
	rpsFlag         float64
	logLevelFlag    string
	logFormatFlag   string
	metricsFileFlag string
)

// appConfig holds the loaded configuration, available after PersistentPreRunE.
var appConfig *config.Config

// logger is built from appConfig and writes to stderr.
var logger = slog.Default()

// printer draws progress on stderr when it is a terminal.
var printer = progress.New(os.Stderr)

var rootCmd = &cobra.Command{
	Use:   "sectools",
	Short: "sectools: reporting and housekeeping for the Sysdig Secure API",
	Long: `sectools pulls runtime vulnerability results, risk accepts, agent status
and scheduled reports from the Sysdig Secure API and turns them into
flat reports. It also cleans up risk accepts whose images are no longer
running and converts local scanner output.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		config.ApplyFlags(cfg, cmd)

		authorityFlag = cfg.SecureURLAuthority
		tokenFlag = cfg.APIToken
		outputFlag = cfg.OutputFormat
		timeoutFlag = cfg.Timeout
		backoffFlag = cfg.Backoff
		maxRetriesFlag = cfg.MaxRetries
		rpsFlag = cfg.RequestsPerSecond

		appConfig = cfg
		logger = observability.NewLogger(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&authorityFlag, "authority", "a", "", "Secure URL authority, e.g. secure.sysdig.com")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "Secure API token")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "table", "output format: table, csv, json, markdown, html")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", secure.DefaultTimeout, "timeout for a single HTTP exchange")
	rootCmd.PersistentFlags().DurationVar(&backoffFlag, "backoff", secure.DefaultBackoff, "wait before retrying a throttled request")
	rootCmd.PersistentFlags().IntVar(&maxRetriesFlag, "max-retries", 0, "retries per request before giving up (0 = unlimited)")
	rootCmd.PersistentFlags().Float64Var(&rpsFlag, "rps", 0, "maximum requests per second (0 = unpaced)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "text", "log format: text, json")
	rootCmd.PersistentFlags().StringVar(&metricsFileFlag, "metrics-file", "", "write run metrics to this file in Prometheus textfile format")

	rootCmd.AddCommand(versionCmd)
}

// newSession builds the API session for the current run.
func newSession() (*secure.Session, error) {
	if err := appConfig.RequireAPI(); err != nil {
		return nil, err
	}
	endpoint, err := types.ParseAuthority(appConfig.SecureURLAuthority)
	if err != nil {
		return nil, fmt.Errorf("invalid secure URL authority: %w", err)
	}

	policy := secure.DefaultRetryPolicy()
	policy.Backoff = appConfig.Backoff
	policy.MaxRetries = appConfig.MaxRetries

	return secure.NewSession(secure.Config{
		Endpoint:          endpoint,
		Token:             appConfig.APIToken,
		Timeout:           appConfig.Timeout,
		Policy:            policy,
		RequestsPerSecond: appConfig.RequestsPerSecond,
		Observer:          printer,
		Logger:            logger,
	})
}

// runContext is cancelled on interrupt so long pagination loops stop
// between requests.
func runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// finishRun logs the session counters and writes the metrics file when
// configured. rows < 0 means the command produced no report.
func finishRun(cmd *cobra.Command, s *secure.Session, rows int, started time.Time) error {
	stats := s.Stats()
	logger.Info("run complete",
		"command", cmd.CommandPath(),
		"requests", stats.Requests(),
		"throttled_retries", stats.Retries(429),
		"gateway_timeout_retries", stats.Retries(504),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	if appConfig.MetricsFile == "" {
		return nil
	}
	m := observability.NewRunMetrics(cmd.CommandPath(), stats, started)
	if rows >= 0 {
		m.SetRows(rows)
	}
	return m.WriteTextfile(appConfig.MetricsFile)
}
