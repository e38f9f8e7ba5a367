package report

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/docuflow/therenotify/internal/aggregate"
	"github.com/docuflow/therenotify/internal/domain"
	"github.com/docuflow/therenotify/internal/mailer"
	"github.com/docuflow/therenotify/internal/runlog"
	"github.com/docuflow/therenotify/internal/therefore"
)

// ErrAlreadyRunning signals that another run holds the report's lock.
// Callers treat it as a skip, not a failure.
var ErrAlreadyRunning = errors.New("report is already running")

// InstanceSource fetches the flattened per-user instance rows for one tenant.
type InstanceSource interface {
	AllInstancesForUsers(ctx context.Context, opts therefore.QueryOptions) (therefore.FetchResult, error)
}

// ReportStore is the slice of the record store the processor needs.
type ReportStore interface {
	ReportByID(id int) (domain.ReportDefinition, error)
	TenantByID(id int) (domain.Tenant, error)
	TemplateByID(id int) (domain.EmailTemplate, error)
	DefaultSMTPConfig() (domain.SMTPConfig, error)
	SetReportLastRun(id int, fireTime time.Time) error
}

// RunLog records run outcomes and arbitrates the per-report run lock.
type RunLog interface {
	Append(e runlog.Entry) error
	AcquireLock(reportID int, holder string, staleAfter time.Duration) (bool, error)
	ReleaseLock(reportID int, holder string) error
}

// Processor executes report runs.
type Processor struct {
	store     ReportStore
	runs      RunLog
	newSource func(domain.Tenant) InstanceSource
	newSender func(domain.SMTPConfig) mailer.Sender
	lockTTL   time.Duration
	maxRows   int
	now       func() time.Time
}

// Options tunes a Processor beyond its defaults.
type Options struct {
	LockTTL time.Duration
	MaxRows int
}

// NewProcessor wires a processor against the record store and run log.
// The source and sender constructors are injected so tests can substitute
// fakes for the upstream API and SMTP.
func NewProcessor(store ReportStore, runs RunLog, newSource func(domain.Tenant) InstanceSource, newSender func(domain.SMTPConfig) mailer.Sender, opts Options) *Processor {
	if opts.LockTTL <= 0 {
		opts.LockTTL = time.Hour
	}
	return &Processor{
		store:     store,
		runs:      runs,
		newSource: newSource,
		newSender: newSender,
		lockTTL:   opts.LockTTL,
		maxRows:   opts.MaxRows,
		now:       time.Now,
	}
}

// RunByID looks up a report and runs it. Used by manual triggers.
// The invocation time becomes the fire time, so a manual run advances
// last_run past any scheduled fire still pending in the same window;
// the scheduler will not fire that window again.
func (p *Processor) RunByID(ctx context.Context, reportID int, trigger domain.TriggerKind) (RunResult, error) {
	rpt, err := p.store.ReportByID(reportID)
	if err != nil {
		return RunResult{}, fmt.Errorf("loading report %d: %w", reportID, err)
	}
	return p.Run(ctx, rpt, trigger, p.now())
}

// Run executes one report. fireTime is the cron fire time that triggered
// the run (for manual triggers, the invocation time); on completion
// last_run advances to it, never to wall-clock now.
func (p *Processor) Run(ctx context.Context, rpt domain.ReportDefinition, trigger domain.TriggerKind, fireTime time.Time) (RunResult, error) {
	runID := uuid.NewString()
	res := RunResult{
		RunID:     runID,
		ReportID:  rpt.ID,
		Trigger:   trigger,
		State:     StatePending,
		StartedAt: p.now(),
	}

	acquired, err := p.runs.AcquireLock(rpt.ID, runID, p.lockTTL)
	if err != nil {
		return res, fmt.Errorf("acquiring run lock for report %d: %w", rpt.ID, err)
	}
	if !acquired {
		log.Printf("[report] report %d (%s) already running, skipping", rpt.ID, rpt.Name)
		return res, ErrAlreadyRunning
	}
	defer func() {
		if err := p.runs.ReleaseLock(rpt.ID, runID); err != nil {
			log.Printf("[report] releasing lock for report %d: %v", rpt.ID, err)
		}
	}()

	log.Printf("[report] run %s starting: report %d (%s), trigger=%s", runID, rpt.ID, rpt.Name, trigger)
	res = p.execute(ctx, rpt, res)
	res.FinishedAt = p.now()

	// Advance last_run even on failure so a broken report retries on its
	// next fire instead of every tick.
	if err := p.store.SetReportLastRun(rpt.ID, fireTime); err != nil {
		log.Printf("[report] updating last_run for report %d: %v", rpt.ID, err)
	}

	entry := runlog.Entry{
		ID:             runID,
		ReportID:       rpt.ID,
		Trigger:        trigger,
		Status:         res.Status,
		Message:        res.Summary(),
		InstancesFound: res.InstancesFound,
		Recipients:     res.Recipients,
		EmailsSent:     res.EmailsSent,
		EmailsFailed:   res.EmailsFailed,
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
	}
	if err := p.runs.Append(entry); err != nil {
		log.Printf("[report] writing run log for report %d: %v", rpt.ID, err)
	}

	log.Printf("[report] run %s finished: status=%s %s", runID, res.Status, res.Summary())
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

// execute performs the fetch/aggregate/render/send pipeline while the
// lock is held.
func (p *Processor) execute(ctx context.Context, rpt domain.ReportDefinition, res RunResult) RunResult {
	tenant, err := p.store.TenantByID(rpt.TenantID)
	if err != nil {
		return failed(res, fmt.Errorf("loading tenant %d: %w", rpt.TenantID, err))
	}
	if !tenant.Active {
		return failed(res, fmt.Errorf("tenant %d (%s) is inactive", tenant.ID, tenant.Name))
	}

	tmpl, err := p.store.TemplateByID(rpt.TemplateID)
	if err != nil {
		return failed(res, fmt.Errorf("loading template %d: %w", rpt.TemplateID, err))
	}
	// A template that does not parse would fail every recipient, so it
	// is fatal before any fetch happens.
	renderer, err := mailer.NewRenderer(tmpl.SubjectTemplate, tmpl.BodyTemplate)
	if err != nil {
		return failed(res, err)
	}

	smtpCfg, err := p.store.DefaultSMTPConfig()
	if err != nil {
		return failed(res, fmt.Errorf("loading smtp config: %w", err))
	}

	res.State = StateFetching
	source := p.newSource(tenant)
	fetched, err := source.AllInstancesForUsers(ctx, therefore.QueryOptions{
		ProcessNos:        rpt.ProcessNos,
		MaxRows:           p.maxRows,
		SkipUserExpansion: rpt.SkipUserExpansion,
	})
	if err != nil {
		return failed(res, fmt.Errorf("fetching instances: %w", err))
	}
	for _, f := range fetched.Faults {
		res.Faults = append(res.Faults, Fault{
			Category: FaultFetch,
			Subject:  fmt.Sprintf("instance %d", f.InstanceNo),
			Err:      f.Err,
		})
	}
	res.InstancesFound = len(fetched.Instances)

	if len(fetched.Instances) == 0 {
		res.State = StateCompleted
		// No instances plus fetch faults means the instances may exist
		// but could not be retrieved, which must not read as a clean run.
		if len(res.Faults) > 0 {
			log.Printf("[report] report %d: no instances survived fetch (%d faults)", rpt.ID, len(res.Faults))
			res.Status = domain.RunPartial
		} else {
			log.Printf("[report] report %d: no workflow instances found", rpt.ID)
			res.Status = domain.RunSuccess
		}
		return res
	}

	res.State = StateAggregating
	groups, skipped := aggregate.GroupByRecipient(fetched.Instances)
	if len(skipped) > 0 {
		log.Printf("[report] report %d: %d instances skipped for recipients without an email address", rpt.ID, len(skipped))
	}
	res.Recipients = len(groups)

	sender := p.newSender(smtpCfg)
	order := rpt.EffectiveSortOrder()
	for _, group := range groups {
		res.State = StateRendering
		instances := aggregate.SortInstances(group.Instances, order)
		user := mailer.ViewUser{Email: group.Email}
		if len(instances) > 0 {
			user.DisplayName = instances[0].UserDisplayName
		}
		subject, body, err := renderer.Render(user, instances, rpt, tenant)
		if err != nil {
			res.Faults = append(res.Faults, Fault{Category: FaultRender, Subject: group.Email, Err: err})
			res.EmailsFailed++
			continue
		}

		to := group.Email
		if rpt.SendAllToAdmin && rpt.AdminEmail != "" {
			to = rpt.AdminEmail
		}

		res.State = StateSending
		msg := mailer.Message{
			To:       to,
			From:     smtpCfg.FromAddress,
			FromName: smtpCfg.FromName,
			Subject:  subject,
			BodyHTML: body,
		}
		if err := sender.Send(ctx, msg); err != nil {
			res.Faults = append(res.Faults, Fault{Category: FaultSend, Subject: to, Err: err})
			res.EmailsFailed++
			continue
		}
		res.EmailsSent++
	}

	res.State = StateCompleted
	switch {
	case res.EmailsFailed == 0 && len(res.Faults) == 0:
		res.Status = domain.RunSuccess
	case res.EmailsSent > 0 || res.EmailsFailed == 0:
		res.Status = domain.RunPartial
	default:
		res.Status = domain.RunError
	}
	return res
}

func failed(res RunResult, err error) RunResult {
	res.State = StateFailed
	res.Status = domain.RunError
	res.Err = err
	return res
}
