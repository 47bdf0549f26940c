package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/buemura/sectools/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGetter struct {
	docs  []string
	err   error
	calls int
}

func (g *scriptedGetter) Get(_ context.Context, _ string, _ url.Values) (types.Record, error) {
	i := g.calls
	g.calls++
	if g.err != nil && i == len(g.docs) {
		return nil, g.err
	}
	return types.Record(g.docs[i]), nil
}

type sleepRecorder struct{ sleeps []time.Duration }

func (c *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	return ctx.Err()
}

type recordingRunner struct {
	argv [][]string
	err  error
}

func (r *recordingRunner) Run(_ context.Context, argv []string) error {
	r.argv = append(r.argv, argv)
	return r.err
}

func newPoller(t *testing.T, g Getter, clock *sleepRecorder, runner *recordingRunner) *Poller {
	t.Helper()
	p, err := New(g, Options{
		URL:      "https://secure.example.com/api/results?filter=x",
		Command:  `notify --msg "scan complete" 'a b'`,
		Interval: time.Minute,
		Clock:    clock,
		Runner:   runner,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	_, err := New(&scriptedGetter{}, Options{Command: "echo"})
	assert.Error(t, err)
	_, err = New(&scriptedGetter{}, Options{URL: "https://x"})
	assert.Error(t, err)
	_, err = New(&scriptedGetter{}, Options{URL: "https://x", Command: `echo "unterminated`})
	assert.Error(t, err)
}

func TestNew_ParsesCommand(t *testing.T) {
	p := newPoller(t, &scriptedGetter{}, &sleepRecorder{}, &recordingRunner{})
	assert.Equal(t, []string{"notify", "--msg", "scan complete", "a b"}, p.Argv())
}

func TestRun_WaitsForEmptyPage(t *testing.T) {
	g := &scriptedGetter{docs: []string{
		`{"page":{"returned":5}}`,
		`{"page":{"returned":1}}`,
		`{"page":{"returned":0}}`,
	}}
	clock := &sleepRecorder{}
	runner := &recordingRunner{}

	polls, err := newPoller(t, g, clock, runner).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, polls)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, clock.sleeps)
	require.Len(t, runner.argv, 1)
	assert.Equal(t, "notify", runner.argv[0][0])
}

func TestRun_MissingPageCountsAsEmpty(t *testing.T) {
	runner := &recordingRunner{}
	polls, err := newPoller(t, &scriptedGetter{docs: []string{`{}`}}, &sleepRecorder{}, runner).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, polls)
	assert.Len(t, runner.argv, 1)
}

func TestRun_FetchErrorStops(t *testing.T) {
	g := &scriptedGetter{docs: []string{`{"page":{"returned":2}}`}, err: errors.New("unexpected HTTP response status: 500")}
	runner := &recordingRunner{}

	polls, err := newPoller(t, g, &sleepRecorder{}, runner).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, 2, polls)
	assert.Empty(t, runner.argv)
}

func TestRun_CommandError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("exit status 1")}
	_, err := newPoller(t, &scriptedGetter{docs: []string{`{"page":{"returned":0}}`}}, &sleepRecorder{}, runner).Run(context.Background())
	assert.ErrorContains(t, err, "running command")
}

func TestRun_CancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newPoller(t, &scriptedGetter{docs: []string{`{"page":{"returned":3}}`}}, &sleepRecorder{}, &recordingRunner{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
