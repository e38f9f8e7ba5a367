// Package report runs one report end to end: fetch workflow instances,
// group them per recipient, render the template, and send email.
package report

import (
	"fmt"
	"time"

	"github.com/docuflow/therenotify/internal/domain"
)

// State tracks how far a run has progressed.
type State string

const (
	StatePending     State = "pending"
	StateFetching    State = "fetching"
	StateAggregating State = "aggregating"
	StateRendering   State = "rendering"
	StateSending     State = "sending"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// FaultCategory classifies a non-fatal per-item failure.
type FaultCategory string

const (
	FaultFetch  FaultCategory = "fetch"
	FaultRender FaultCategory = "render"
	FaultSend   FaultCategory = "send"
)

// Fault is a per-item failure that did not abort the run.
type Fault struct {
	Category FaultCategory
	Subject  string
	Err      error
}

func (f Fault) String() string {
	return fmt.Sprintf("%s %s: %v", f.Category, f.Subject, f.Err)
}

// RunResult is the outcome of one report run.
type RunResult struct {
	RunID          string
	ReportID       int
	Trigger        domain.TriggerKind
	State          State
	Status         domain.RunStatus
	StartedAt      time.Time
	FinishedAt     time.Time
	InstancesFound int
	Recipients     int
	EmailsSent     int
	EmailsFailed   int
	Faults         []Fault
	Err            error
}

// firstFault returns the first fault of the given category, if any.
func (r RunResult) firstFault(cat FaultCategory) (Fault, bool) {
	for _, f := range r.Faults {
		if f.Category == cat {
			return f, true
		}
	}
	return Fault{}, false
}

// Summary builds the human-readable message stored in the run log.
func (r RunResult) Summary() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.InstancesFound == 0 {
		if f, ok := r.firstFault(FaultFetch); ok {
			return fmt.Sprintf("No instances survived fetch, %d faults; first %s", len(r.Faults), f.String())
		}
		return "No workflow instances found"
	}
	msg := fmt.Sprintf("%d instances, %d recipients, %d emails sent", r.InstancesFound, r.Recipients, r.EmailsSent)
	if r.EmailsFailed > 0 {
		msg += fmt.Sprintf(", %d failed", r.EmailsFailed)
	}
	for _, cat := range []FaultCategory{FaultFetch, FaultRender, FaultSend} {
		if f, ok := r.firstFault(cat); ok {
			msg += "; first " + f.String()
		}
	}
	return msg
}
