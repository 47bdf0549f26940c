// Package poll waits until a vendor query returns no results and then runs
// a command.
package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"time"

	"github.com/buemura/sectools/internal/secure"
	"github.com/buemura/sectools/pkg/types"
	shellwords "github.com/mattn/go-shellwords"
)

// DefaultInterval is the wait between polls.
const DefaultInterval = 300 * time.Second

// Getter fetches one JSON document.
type Getter interface {
	Get(ctx context.Context, ref string, query url.Values) (types.Record, error)
}

// CommandRunner executes the parsed command line.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) error
}

// ExecRunner runs commands with os/exec, inheriting stdio.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Options configures a Poller.
type Options struct {
	URL      string
	Command  string
	Interval time.Duration
	Clock    secure.Clock
	Runner   CommandRunner
	Logger   *slog.Logger
}

// Poller repeatedly queries URL until page.returned is zero.
type Poller struct {
	get  Getter
	opts Options
	argv []string
}

// New validates opts and parses the command line.
func New(get Getter, opts Options) (*Poller, error) {
	if opts.URL == "" {
		return nil, errors.New("poll URL is required")
	}
	if opts.Command == "" {
		return nil, errors.New("poll command is required")
	}
	argv, err := shellwords.Parse(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", opts.Command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command %q is empty", opts.Command)
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = secure.RealClock()
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{get: get, opts: opts, argv: argv}, nil
}

// Argv returns the parsed command.
func (p *Poller) Argv() []string { return p.argv }

// Run polls until the result set is empty, runs the command once and
// returns the number of polls made. Any fetch error stops the loop.
func (p *Poller) Run(ctx context.Context) (int, error) {
	log := p.opts.Logger
	for polls := 1; ; polls++ {
		doc, err := p.get.Get(ctx, p.opts.URL, nil)
		if err != nil {
			return polls, fmt.Errorf("polling %s: %w", p.opts.URL, err)
		}

		returned := doc.Int("page.returned")
		log.Info("polled results", "returned", returned, "poll", polls)
		if returned == 0 {
			log.Warn("no results left, executing command", "command", p.opts.Command)
			if err := p.opts.Runner.Run(ctx, p.argv); err != nil {
				return polls, fmt.Errorf("running command: %w", err)
			}
			return polls, nil
		}

		if err := p.opts.Clock.Sleep(ctx, p.opts.Interval); err != nil {
			return polls, err
		}
	}
}
