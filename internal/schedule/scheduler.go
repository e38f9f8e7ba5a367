// Package schedule drives cron-based report execution. A single polling
// loop decides which reports are due; the runs themselves execute in
// their own goroutines with the run lock as the only coupling.
package schedule

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/docuflow/therenotify/internal/domain"
	"github.com/docuflow/therenotify/internal/report"
)

// ReportSource lists the reports eligible for scheduling.
type ReportSource interface {
	EnabledReports() ([]domain.ReportDefinition, error)
	SetReportLastRun(id int, fireTime time.Time) error
}

// Runner executes one due report.
type Runner interface {
	Run(ctx context.Context, rpt domain.ReportDefinition, trigger domain.TriggerKind, fireTime time.Time) (report.RunResult, error)
}

// Scheduler polls report definitions and fires due ones.
type Scheduler struct {
	source   ReportSource
	runner   Runner
	parser   cron.Parser
	interval time.Duration
	catchUp  bool
	grace    time.Duration

	now      func() time.Time
	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once

	// runCtx is what runs execute on. It is detached from the poll
	// context so a shutdown signal ends the loop without aborting
	// in-flight runs; Stop cancels it after the grace period.
	runCtx    context.Context
	runCancel context.CancelFunc
}

// Options tunes the scheduler.
type Options struct {
	// Interval between polls. Defaults to one minute.
	Interval time.Duration
	// CatchUp fires a report once for the latest missed cron time when
	// the process was down across a fire. When false, missed fires are
	// skipped and last_run advances without running.
	CatchUp bool
	// Grace bounds how long Stop waits for in-flight runs.
	Grace time.Duration
}

// New creates a scheduler over the given report source and runner.
func New(source ReportSource, runner Runner, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Grace <= 0 {
		opts.Grace = 30 * time.Second
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Scheduler{
		source:    source,
		runner:    runner,
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		interval:  opts.Interval,
		catchUp:   opts.CatchUp,
		grace:     opts.Grace,
		now:       time.Now,
		stopChan:  make(chan struct{}),
		runCtx:    runCtx,
		runCancel: runCancel,
	}
}

// ParseCron validates a cron expression using the scheduler's format.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// DueAt returns the latest fire time of the report's cron expression
// that is after last_run and at or before now. A report missed across
// downtime collapses to a single catch-up fire rather than one per
// missed interval. The zero value means not due.
func (s *Scheduler) DueAt(rpt domain.ReportDefinition, now time.Time) time.Time {
	sched, err := s.parser.Parse(rpt.CronExpr)
	if err != nil {
		log.Printf("[schedule] report %d (%s): bad cron expression %q: %v", rpt.ID, rpt.Name, rpt.CronExpr, err)
		return time.Time{}
	}

	lastRun := rpt.LastRun
	if lastRun.IsZero() {
		// Never-run reports look back one day so a report created after
		// its daily fire time still fires today.
		lastRun = now.Add(-24 * time.Hour)
	}

	var due time.Time
	for t := sched.Next(lastRun); !t.After(now); t = sched.Next(t) {
		due = t
	}
	return due
}

// Tick evaluates all enabled reports once and fires the due ones.
func (s *Scheduler) Tick() {
	reports, err := s.source.EnabledReports()
	if err != nil {
		log.Printf("[schedule] loading reports: %v", err)
		return
	}

	now := s.now()
	for _, rpt := range reports {
		fireTime := s.DueAt(rpt, now)
		if fireTime.IsZero() {
			continue
		}

		if !s.catchUp && now.Sub(fireTime) >= s.interval {
			// Stale fire from downtime: advance last_run without running.
			log.Printf("[schedule] report %d (%s): skipping missed fire at %s", rpt.ID, rpt.Name, fireTime.Format(time.RFC3339))
			if err := s.source.SetReportLastRun(rpt.ID, fireTime); err != nil {
				log.Printf("[schedule] advancing last_run for report %d: %v", rpt.ID, err)
			}
			continue
		}

		log.Printf("[schedule] report %d (%s) due at %s, firing", rpt.ID, rpt.Name, fireTime.Format(time.RFC3339))
		s.wg.Add(1)
		go func(rpt domain.ReportDefinition, fireTime time.Time) {
			defer s.wg.Done()
			_, err := s.runner.Run(s.runCtx, rpt, domain.TriggerScheduled, fireTime)
			if err != nil && !errors.Is(err, report.ErrAlreadyRunning) {
				log.Printf("[schedule] report %d (%s) failed: %v", rpt.ID, rpt.Name, err)
			}
		}(rpt, fireTime)
	}
}

// Start runs the polling loop until Stop is called or the context ends.
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("[schedule] polling every %s (catch_up=%v)", s.interval, s.catchUp)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick()
	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Stop ends the polling loop, waits up to the grace period for
// in-flight runs to finish, then cancels any still running.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.grace):
		log.Printf("[schedule] shutdown grace period elapsed, canceling remaining runs")
	}
	s.runCancel()
}
