package domain

// RunStatus represents the outcome of a report run
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// TriggerKind distinguishes scheduled fires from manual run-now invocations
type TriggerKind string

const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

// SortOrder controls how instances are ordered within a recipient's email
type SortOrder string

const (
	SortByDueDate     SortOrder = "task_due_date"
	SortByProcessName SortOrder = "process_name"
	SortByStartDate   SortOrder = "task_start_date"
)

// DefaultSortOrder is used when a report does not specify one
const DefaultSortOrder = SortByDueDate
