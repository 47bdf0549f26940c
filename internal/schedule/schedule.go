// Package schedule downloads the most recent report produced by a named
// reporting schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/buemura/sectools/internal/export"
	"github.com/buemura/sectools/pkg/types"
	"github.com/klauspost/compress/gzip"
)

const (
	usersMePath   = "api/users/me"
	schedulesPath = "api/scanning/reporting/v2/schedules"

	userTokenLength           = 36
	serviceAccountTokenLength = 41
)

var (
	ErrInvalidAPIKey     = errors.New("invalid API key")
	ErrNoSchedules       = errors.New("no report schedules found")
	ErrScheduleNotFound  = errors.New("report schedule not found")
	ErrDuplicateSchedule = errors.New("more than one schedule found with that name")
	ErrNeverRun          = errors.New("report schedule has never been run")
)

// Client is the subset of the API session used here.
type Client interface {
	Get(ctx context.Context, ref string, query url.Values) (types.Record, error)
	Download(ctx context.Context, ref string, w io.Writer) (int64, error)
}

// UserInfo identifies who owns the API key.
type UserInfo struct {
	Username string
	TeamName string
}

// Identify resolves the owner of token. User keys are looked up; service
// account keys cannot be.
func Identify(ctx context.Context, c Client, token string) (UserInfo, error) {
	switch len(token) {
	case userTokenLength:
		me, err := c.Get(ctx, usersMePath, nil)
		if err != nil {
			return UserInfo{}, fmt.Errorf("retrieving api key user info: %w", err)
		}
		info := UserInfo{Username: me.String("user.username")}
		current := me.Get("user.currentTeam")
		for _, team := range me.Get("user.teamRoles").Array() {
			if team.Get("teamId").String() == current.String() {
				info.TeamName = team.Get("teamName").String()
				break
			}
		}
		return info, nil
	case serviceAccountTokenLength:
		return UserInfo{Username: "Service Account", TeamName: "Unknown"}, nil
	default:
		return UserInfo{}, ErrInvalidAPIKey
	}
}

// FindScheduleID returns the id of the one schedule called name.
func FindScheduleID(schedules types.Record, name string) (string, error) {
	var ids []string
	for _, s := range schedules.Get("@this").Array() {
		if s.Get("name").String() == name {
			ids = append(ids, s.Get("id").String())
		}
	}
	switch len(ids) {
	case 0:
		return "", fmt.Errorf("%w: %q", ErrScheduleNotFound, name)
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %q", ErrDuplicateSchedule, name)
	}
}

// Status describes the last completed run of a schedule.
type Status struct {
	ReportID     string
	ScheduledAt  string
	ReportFormat string
	// Running is set when a newer report is in progress or queued.
	Running bool
}

// ParseStatus reads a schedule status document.
func ParseStatus(doc types.Record) (Status, error) {
	last := doc.Get("lastCompletedReport")
	if !last.Exists() {
		return Status{}, ErrNeverRun
	}
	st := Status{
		ReportID:     last.Get("reportId").String(),
		ScheduledAt:  last.Get("scheduledAt").String(),
		ReportFormat: last.Get("reportFormat").String(),
		Running:      doc.Get("currentReport").Exists(),
	}
	if st.ReportID == "" {
		return Status{}, fmt.Errorf("%w: lastCompletedReport.reportId", types.ErrMissingField)
	}
	return st, nil
}

// Filename derives the compressed report file name, e.g.
// "weekly-report-20240102-030405.csv.gz".
func Filename(scheduleName string, st Status) string {
	base := strings.ReplaceAll(scheduleName, " ", "-")
	suffix := strings.NewReplacer("Z", "", "-", "", "T", "-", ":", "").Replace(st.ScheduledAt)
	return strings.ToLower(fmt.Sprintf("%s-%s.%s.gz", base, suffix, st.ReportFormat))
}

// Options controls Download.
type Options struct {
	Name       string
	Token      string
	Dir        string
	Decompress bool
	Logger     *slog.Logger
}

// Download finds the schedule by name and saves its last completed report.
// It returns the path of the file written.
func Download(ctx context.Context, c Client, opts Options) (string, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	info, err := Identify(ctx, c, opts.Token)
	if err != nil {
		return "", err
	}
	log.Info("retrieving report schedules", "username", info.Username, "team", info.TeamName)

	schedules, err := c.Get(ctx, schedulesPath, nil)
	if err != nil {
		return "", fmt.Errorf("listing report schedules: %w", err)
	}
	if len(schedules.Get("@this").Array()) == 0 {
		return "", fmt.Errorf("%w for team %q", ErrNoSchedules, info.TeamName)
	}

	id, err := FindScheduleID(schedules, opts.Name)
	if err != nil {
		return "", err
	}
	log.Info("found schedule", "name", opts.Name, "id", id)

	doc, err := c.Get(ctx, schedulesPath+"/"+url.PathEscape(id)+"/status", nil)
	if err != nil {
		return "", fmt.Errorf("retrieving schedule status: %w", err)
	}
	st, err := ParseStatus(doc)
	if err != nil {
		return "", fmt.Errorf("schedule %q: %w", opts.Name, err)
	}
	if st.Running {
		log.Warn("a new report is currently running or scheduled to run; retrieving the last completed report")
	}
	log.Info("preparing to download report", "scheduled_at", st.ScheduledAt)

	compressed := filepath.Join(opts.Dir, Filename(opts.Name, st))
	ref := fmt.Sprintf("%s/%s/reports/%s/download", schedulesPath, url.PathEscape(id), url.PathEscape(st.ReportID))

	log.Info("downloading report", "file", compressed)
	err = export.WriteWith(compressed, func(w io.Writer) error {
		_, err := c.Download(ctx, ref, w)
		return err
	})
	if err != nil {
		return "", err
	}

	if !opts.Decompress {
		return compressed, nil
	}

	plain := strings.TrimSuffix(compressed, ".gz")
	if err := DecompressFile(compressed, plain); err != nil {
		return "", err
	}
	if err := os.Remove(compressed); err != nil {
		return "", fmt.Errorf("removing %s: %w", compressed, err)
	}
	log.Info("decompressed the report file", "file", plain)
	return plain, nil
}

// DecompressFile gunzips src into a new file dst.
func DecompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("reading gzip header of %s: %w", src, err)
	}
	defer zr.Close()

	return export.WriteWith(dst, func(w io.Writer) error {
		_, err := io.Copy(w, zr)
		return err
	})
}
