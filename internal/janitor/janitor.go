// Package janitor periodically erases soft-deleted assets whose retention
// window has passed.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger erases soft-deleted assets last touched before the cutoff.
type Purger interface {
	Purge(ctx context.Context, before time.Time) (int, error)
}

// Janitor runs Purge on a cron schedule.
type Janitor struct {
	cron      *cron.Cron
	purger    Purger
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New parses schedule (standard cron with optional seconds, or descriptors
// such as "@daily") and registers the purge job. It returns nil when schedule
// is empty, which disables the janitor.
func New(log *slog.Logger, purger Purger, schedule string, retention time.Duration) (*Janitor, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, nil
	}
	if purger == nil {
		return nil, errors.New("janitor purger is required")
	}
	if log == nil {
		log = slog.Default()
	}
	j := &Janitor{
		purger:    purger,
		retention: retention,
		logger:    log.With(slog.String("service", "janitor")),
		now:       time.Now,
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{logger: j.logger}
	j.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := j.cron.AddFunc(schedule, func() {
		_, _ = j.RunOnce(context.Background())
	}); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule: %w", err)
	}
	return j, nil
}

// RunOnce purges assets soft-deleted more than the retention window ago.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	n, err := j.purger.Purge(ctx, cutoff)
	if err != nil {
		j.logger.Error("purge failed", slog.Time("before", cutoff), slog.Int("purged", n), slog.Any("error", err))
		return n, err
	}
	if n > 0 {
		j.logger.Info("purged deleted assets", slog.Time("before", cutoff), slog.Int("purged", n))
	}
	return n, nil
}

// Start begins running the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("janitor started", slog.Duration("retention", j.retention))
}

// Stop halts the schedule and waits for a running purge to finish or for ctx
// to end.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
