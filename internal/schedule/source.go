// Package schedule fires callbacks on cron or interval schedules, backed
// by gocron/v2. A schedule expression containing whitespace is parsed as
// a 5-field cron expression; otherwise it is parsed as an interval using
// the same {s,m,h,d,w} unit set as the rest of the config (e.g. "1d",
// "90s"), matching original_source's daemon.py distinction between a
// crontab-style "schedule" string and a plain interval.
//
// Grounded on the teacher's internal/daemon/scheduler.go for the
// add/remove/list surface, generalized onto github.com/go-co-op/gocron/v2
// instead of the teacher's hand-rolled ticker and cron-pattern special
// cases.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-co-op/gocron/v2"

	"github.com/gallofeliz/hen-backup/internal/config"
	"github.com/gallofeliz/hen-backup/internal/logfields"
)

// Handle lets a caller cancel a single registered schedule.
type Handle struct {
	jobID  string
	source *Source
}

// Unsubscribe removes the schedule permanently.
func (h *Handle) Unsubscribe() error {
	return h.source.remove(h.jobID)
}

// Source wraps a gocron.Scheduler, exposing a narrow add/remove surface
// for cron/interval callbacks.
type Source struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	logger    *slog.Logger
}

// New starts the underlying gocron scheduler.
func New(logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.Start()
	return &Source{scheduler: s, jobs: make(map[string]gocron.Job), logger: logger}, nil
}

// Add registers fn to run on expression, which is either a 5-field cron
// expression ("0 2 * * *") or an `<int><unit>` interval with unit
// s/m/h/d/w ("24h", "1d"). When runAtBegin is true the job also fires
// once, synchronously, right after registration, mirroring a schedule
// whose first backup should not wait a full period.
func (s *Source) Add(name, expression string, runAtBegin bool, fn func()) (*Handle, error) {
	def, err := definitionFor(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule expression %q: %w", expression, err)
	}

	wrapped := func() {
		s.logger.Info("schedule firing", logfields.ScheduleID(name), logfields.Name(name))
		fn()
	}

	job, err := s.scheduler.NewJob(def, gocron.NewTask(wrapped), gocron.WithName(name))
	if err != nil {
		return nil, fmt.Errorf("failed to register schedule %q: %w", name, err)
	}

	s.mu.Lock()
	s.jobs[job.ID().String()] = job
	s.mu.Unlock()

	if runAtBegin {
		wrapped()
	}

	return &Handle{jobID: job.ID().String(), source: s}, nil
}

func (s *Source) remove(jobID string) error {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if ok {
		delete(s.jobs, jobID)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("schedule %s not found", jobID)
	}
	return s.scheduler.RemoveJob(job.ID())
}

// Stop shuts down the underlying scheduler, waiting for in-flight jobs.
func (s *Source) Stop(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- s.scheduler.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func definitionFor(expression string) (gocron.JobDefinition, error) {
	if strings.ContainsAny(expression, " \t") {
		return gocron.CronJob(expression, false), nil
	}

	d, err := config.ParseDuration(expression)
	if err != nil {
		return nil, err
	}
	return gocron.DurationJob(d), nil
}
