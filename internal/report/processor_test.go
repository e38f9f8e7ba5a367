package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docuflow/therenotify/internal/domain"
	"github.com/docuflow/therenotify/internal/mailer"
	"github.com/docuflow/therenotify/internal/runlog"
	"github.com/docuflow/therenotify/internal/therefore"
)

type fakeStore struct {
	tenant   domain.Tenant
	template domain.EmailTemplate
	smtp     domain.SMTPConfig
	report   domain.ReportDefinition

	lastRunID   int
	lastRunTime time.Time
}

func (f *fakeStore) ReportByID(id int) (domain.ReportDefinition, error) {
	if id != f.report.ID {
		return domain.ReportDefinition{}, fmt.Errorf("report %d not found", id)
	}
	return f.report, nil
}

func (f *fakeStore) TenantByID(id int) (domain.Tenant, error) { return f.tenant, nil }

func (f *fakeStore) TemplateByID(id int) (domain.EmailTemplate, error) { return f.template, nil }

func (f *fakeStore) DefaultSMTPConfig() (domain.SMTPConfig, error) { return f.smtp, nil }

func (f *fakeStore) SetReportLastRun(id int, fireTime time.Time) error {
	f.lastRunID = id
	f.lastRunTime = fireTime
	return nil
}

type fakeRunLog struct {
	mu      sync.Mutex
	entries []runlog.Entry
	held    map[int]string
}

func newFakeRunLog() *fakeRunLog {
	return &fakeRunLog{held: make(map[int]string)}
}

func (f *fakeRunLog) Append(e runlog.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeRunLog) AcquireLock(reportID int, holder string, staleAfter time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.held[reportID]; ok {
		return false, nil
	}
	f.held[reportID] = holder
	return true, nil
}

func (f *fakeRunLog) ReleaseLock(reportID int, holder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[reportID] == holder {
		delete(f.held, reportID)
	}
	return nil
}

type fakeSource struct {
	result therefore.FetchResult
	err    error
}

func (f *fakeSource) AllInstancesForUsers(ctx context.Context, opts therefore.QueryOptions) (therefore.FetchResult, error) {
	return f.result, f.err
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []mailer.Message
	failTo map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[msg.To] {
		return fmt.Errorf("%w: connection refused", mailer.ErrTransport)
	}
	f.sent = append(f.sent, msg)
	return nil
}

func testReport() domain.ReportDefinition {
	return domain.ReportDefinition{
		ID:         1,
		Name:       "Daily Summary",
		TenantID:   1,
		TemplateID: 1,
		CronExpr:   "0 9 * * *",
		Enabled:    true,
	}
}

func testInstance(no int, email string) domain.InstanceForUser {
	return domain.InstanceForUser{
		InstanceNo:      no,
		ProcessName:     "Invoice Approval",
		TaskName:        "Approve",
		UserDisplayName: "User",
		UserSMTP:        email,
	}
}

func newTestProcessor(store *fakeStore, runs *fakeRunLog, source *fakeSource, sender *fakeSender) *Processor {
	return NewProcessor(store,
		runs,
		func(domain.Tenant) InstanceSource { return source },
		func(domain.SMTPConfig) mailer.Sender { return sender },
		Options{},
	)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenant: domain.Tenant{ID: 1, Name: "acme", BaseURL: "https://acme.example.com", Active: true},
		template: domain.EmailTemplate{
			ID:              1,
			SubjectTemplate: "Tasks for {{.User.Email}}",
			BodyTemplate:    "<p>{{.InstanceCount}} tasks</p>",
		},
		smtp:   domain.SMTPConfig{ID: 1, FromAddress: "reports@acme.example.com", Active: true},
		report: testReport(),
	}
}

func TestRun_AllRecipientsSucceed(t *testing.T) {
	store := newFakeStore()
	runs := newFakeRunLog()
	source := &fakeSource{result: therefore.FetchResult{Instances: []domain.InstanceForUser{
		testInstance(10, "ada@example.com"),
		testInstance(11, "ben@example.com"),
		testInstance(12, "ada@example.com"),
	}}}
	sender := &fakeSender{}
	proc := newTestProcessor(store, runs, source, sender)

	fireTime := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	res, err := proc.Run(context.Background(), store.report, domain.TriggerScheduled, fireTime)
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}

	if res.Status != domain.RunSuccess {
		t.Errorf("status = %s, want success", res.Status)
	}
	if res.EmailsSent != 2 || res.EmailsFailed != 0 {
		t.Errorf("sent/failed = %d/%d, want 2/0", res.EmailsSent, res.EmailsFailed)
	}
	if res.InstancesFound != 3 || res.Recipients != 2 {
		t.Errorf("instances/recipients = %d/%d, want 3/2", res.InstancesFound, res.Recipients)
	}
	if len(sender.sent) != 2 {
		t.Errorf("sender delivered %d messages, want 2", len(sender.sent))
	}
	if !store.lastRunTime.Equal(fireTime) {
		t.Errorf("last_run = %v, want fire time %v", store.lastRunTime, fireTime)
	}
	if len(runs.entries) != 1 {
		t.Fatalf("run log has %d entries, want 1", len(runs.entries))
	}
	if len(runs.held) != 0 {
		t.Error("lock not released after run")
	}
}

func TestRun_RenderFailureIsPartial(t *testing.T) {
	store := newFakeStore()
	// The template only fails for one recipient.
	store.template.BodyTemplate = `{{if eq .User.Email "bad@example.com"}}{{.NoSuchField}}{{end}}ok`
	runs := newFakeRunLog()
	source := &fakeSource{result: therefore.FetchResult{Instances: []domain.InstanceForUser{
		testInstance(10, "ada@example.com"),
		testInstance(11, "bad@example.com"),
		testInstance(12, "ben@example.com"),
	}}}
	sender := &fakeSender{}
	proc := newTestProcessor(store, runs, source, sender)

	res, err := proc.Run(context.Background(), store.report, domain.TriggerManual, time.Now())
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}

	if res.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial", res.Status)
	}
	if res.EmailsSent != 2 || res.EmailsFailed != 1 {
		t.Errorf("sent/failed = %d/%d, want 2/1", res.EmailsSent, res.EmailsFailed)
	}
	if len(res.Faults) != 1 || res.Faults[0].Category != FaultRender {
		t.Errorf("faults = %v, want one render fault", res.Faults)
	}
	if len(runs.entries) != 1 || runs.entries[0].Status != domain.RunPartial {
		t.Errorf("run log entry = %+v", runs.entries)
	}
}

func TestRun_SendFailureIsPartial(t *testing.T) {
	store := newFakeStore()
	runs := newFakeRunLog()
	source := &fakeSource{result: therefore.FetchResult{Instances: []domain.InstanceForUser{
		testInstance(10, "ada@example.com"),
		testInstance(11, "ben@example.com"),
	}}}
	sender := &fakeSender{failTo: map[string]bool{"ben@example.com": true}}
	proc := newTestProcessor(store, runs, source, sender)

	res, err := proc.Run(context.Background(), store.report, domain.TriggerScheduled, time.Now())
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if res.Status != domain.RunPartial || res.EmailsSent != 1 || res.EmailsFailed != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Faults) != 1 || res.Faults[0].Category != FaultSend {
		t.Errorf("faults = %v, want one send fault", res.Faults)
	}
}

func TestRun_FetchFaultsReportedPartial(t *testing.T) {
	store := newFakeStore()
	runs := newFakeRunLog()
	source := &fakeSource{result: therefore.FetchResult{
		Instances: []domain.InstanceForUser{testInstance(10, "ada@example.com")},
		Faults:    []therefore.Fault{{InstanceNo: 11, Err: errors.New("detail fetch failed")}},
	}}
	sender := &fakeSender{}
	proc := newTestProcessor(store, runs, source, sender)

	res, err := proc.Run(context.Background(), store.report, domain.TriggerScheduled, time.Now())
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if res.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial when detail fetches failed", res.Status)
	}
	if res.EmailsSent != 1 {
		t.Errorf("sent = %d, want 1", res.EmailsSent)
	}
}

func TestRun_AllDetailFetchesFailIsPartial(t *testing.T) {
	store := newFakeStore()
	runs := newFakeRunLog()
	source := &fakeSource{result: therefore.FetchResult{
		Faults: []therefore.Fault{
			{InstanceNo: 10, Err: errors.New("detail fetch failed")},
			{InstanceNo: 11, Err: errors.New("detail fetch failed")},
			{InstanceNo: 12, Err: errors.New("detail fetch failed")},
		},
	}}
	proc := newTestProcessor(store, runs, source, &fakeSender{})

	res, err := proc.Run(context.Background(), store.report, domain.TriggerScheduled, time.Now())
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if res.Status != domain.RunPartial {
		t.Errorf("status = %s, want partial when no instance survived fetch", res.Status)
	}
	if res.EmailsSent != 0 || res.InstancesFound != 0 {
		t.Errorf("sent/instances = %d/%d, want 0/0", res.EmailsSent, res.InstancesFound)
	}
	if len(runs.entries) != 1 {
		t.Fatalf("run log has %d entries, want 1", len(runs.entries))
	}
	if entry := runs.entries[0]; entry.Status != domain.RunPartial || !strings.Contains(entry.Message, "3 faults") {
		t.Errorf("run log entry = %+v, want partial with fault detail", entry)
	}
}

func TestRun_FatalFetchError(t *testing.T) {
	store := newFakeStore()
	runs := newFakeRunLog()
	source := &fakeSource{err: fmt.Errorf("%w: listing failed", therefore.ErrUpstreamUnavailable)}
	proc := newTestProcessor(store, runs, source, &fakeSender{})

	res, err := proc.Run(context.Background(), store.report, domain.TriggerScheduled, time.Now())
	if err == nil {
		t.Fatal("want error")
	}
	if !errors.Is(err, therefore.ErrUpstreamUnavailable) {
		t.Errorf("error = %v", err)
	}
	if res.State != StateFailed || res.Status != domain.RunError {
		t.Errorf("state/status = %s/%s", res.State, res.Status)
	}
	if len(runs.entries) != 1 || runs.entries[0].Status != domain.RunError {
		t.Errorf("run log = %+v", runs.entries)
	}
	if len(runs.held) != 0 {
		t.Error("lock not released after failed run")
	}
}

func TestRun_AlreadyRunning(t *testing.T) {
	store := newFakeStore()
	runs := newFakeRunLog()
	runs.held[1] = "other-run"
	proc := newTestProcessor(store, runs, &fakeSource{}, &fakeSender{})

	_, err := proc.Run(context.Background(), store.report, domain.TriggerScheduled, time.Now())
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("error = %v, want ErrAlreadyRunning", err)
	}
	if len(runs.entries) != 0 {
		t.Errorf("run log has %d entries, want 0 for a skipped run", len(runs.entries))
	}
	if runs.held[1] != "other-run" {
		t.Error("foreign lock was disturbed")
	}
}

func TestRun_NoInstancesIsSuccess(t *testing.T) {
	store := newFakeStore()
	runs := newFakeRunLog()
	proc := newTestProcessor(store, runs, &fakeSource{}, &fakeSender{})

	res, err := proc.Run(context.Background(), store.report, domain.TriggerScheduled, time.Now())
	if err != nil {
		t.Fatalf("Run error = %v", err)
	}
	if res.Status != domain.RunSuccess {
		t.Errorf("status = %s, want success", res.Status)
	}
	if runs.entries[0].Message != "No workflow instances found" {
		t.Errorf("message = %q", runs.entries[0].Message)
	}
}

func TestRun_SendAllToAdmin(t *testing.T) {
	store := newFakeStore()
	store.report.SendAllToAdmin = true
	store.report.AdminEmail = "admin@acme.example.com"
	runs := newFakeRunLog()
	source := &fakeSource{result: therefore.FetchResult{Instances: []domain.InstanceForUser{
		testInstance(10, "ada@example.com"),
		testInstance(11, "ben@example.com"),
	}}}
	sender := &fakeSender{}
	proc := newTestProcessor(store, runs, source, sender)

	if _, err := proc.Run(context.Background(), store.report, domain.TriggerManual, time.Now()); err != nil {
		t.Fatal(err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.sent))
	}
	for _, msg := range sender.sent {
		if msg.To != "admin@acme.example.com" {
			t.Errorf("message to %s, want admin redirect", msg.To)
		}
	}
}

func TestRunByID_ManualTrigger(t *testing.T) {
	store := newFakeStore()
	runs := newFakeRunLog()
	source := &fakeSource{result: therefore.FetchResult{Instances: []domain.InstanceForUser{
		testInstance(10, "ada@example.com"),
	}}}
	proc := newTestProcessor(store, runs, source, &fakeSender{})

	res, err := proc.RunByID(context.Background(), 1, domain.TriggerManual)
	if err != nil {
		t.Fatalf("RunByID error = %v", err)
	}
	if res.Trigger != domain.TriggerManual {
		t.Errorf("trigger = %s, want manual", res.Trigger)
	}
	if _, err := proc.RunByID(context.Background(), 99, domain.TriggerManual); err == nil {
		t.Error("unknown report id should error")
	}
}
