package provisioner

import "time"

// Status is a scheduler status code stored on work items and project records.
// The concrete values are injected through StatusCodes.
type Status int

// StatusCodes names the status values this pipeline reads and writes.
type StatusCodes struct {
	// Eligible marks a work item as queued for provisioning.
	Eligible Status

	// Completed is written when provisioning and deployment succeeded.
	Completed Status

	// Failed is written when any step failed.
	Failed Status
}

// DefaultStatusCodes returns the codes used by the scheduler tables.
//
// Completed (4) matches the project seed enumeration, but Failed (5) does not:
// the seed enumeration defines 3 as failed and has no 5. Callers that mirror
// status onto project records should inject the project codes explicitly.
func DefaultStatusCodes() StatusCodes {
	return StatusCodes{
		Eligible:  1,
		Completed: 4,
		Failed:    5,
	}
}

// Terminal returns the Completed or Failed code.
func (c StatusCodes) Terminal(success bool) Status {
	if success {
		return c.Completed
	}
	return c.Failed
}

// TemplateKind selects which connection string template builds the target
// connection for a work item.
type TemplateKind string

const (
	// TemplateIntegrated uses the server's integrated authentication.
	TemplateIntegrated TemplateKind = "integrated"

	// TemplateSQLAuth uses the work item's username and password.
	TemplateSQLAuth TemplateKind = "sql"
)

// WorkItem is one queued request to provision a tenant database.
type WorkItem struct {
	// ID is the scheduler row identifier.
	ID int64

	// ProjectID references the project record, if any.
	ProjectID *int64

	// ProjectName is the human readable project name the database name is derived from.
	ProjectName string

	// DatabaseName is an optional explicit database name. When empty the name
	// is derived from ProjectName.
	DatabaseName string

	// Username and Password are only populated for TemplateSQLAuth.
	Username string
	Password string

	// Template selects the connection string template.
	Template TemplateKind

	// Status is the current status code.
	Status Status

	// ErrorMessage holds the failure text of the last terminal write.
	ErrorMessage *string

	// Active is cleared by upstream code to soft-disable the item.
	Active bool

	// UpdatedAt is touched on every status write.
	UpdatedAt time.Time
}

// IsEligible reports whether the item should be picked up by a run.
func (w WorkItem) IsEligible(codes StatusCodes) bool {
	return w.Active && w.Status == codes.Eligible
}

// WorkItemFilter selects work items from a store.
type WorkItemFilter struct {
	// ActiveOnly restricts results to items with Active set.
	ActiveOnly bool

	// Status restricts results to a single status code when set.
	Status *Status
}

// EligibleFilter selects active items carrying the eligible code.
func EligibleFilter(codes StatusCodes) WorkItemFilter {
	eligible := codes.Eligible
	return WorkItemFilter{ActiveOnly: true, Status: &eligible}
}

// Matches reports whether item passes the filter.
func (f WorkItemFilter) Matches(item WorkItem) bool {
	if f.ActiveOnly && !item.Active {
		return false
	}
	if f.Status != nil && item.Status != *f.Status {
		return false
	}
	return true
}

// Project is the subset of a project record this pipeline touches.
type Project struct {
	ID           int64
	Status       Status
	ErrorMessage *string
	ModifiedAt   time.Time
}

// OutcomeState distinguishes skipped, succeeded and failed steps.
type OutcomeState int

const (
	// OutcomeSkipped means there was nothing to do (for example an unconfigured artifact).
	OutcomeSkipped OutcomeState = iota

	// OutcomeSucceeded means the step completed.
	OutcomeSucceeded

	// OutcomeFailed means the step returned an error.
	OutcomeFailed
)

// String returns the metric/log label of the state.
func (s OutcomeState) String() string {
	switch s {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a deployment step.
type Outcome struct {
	State OutcomeState

	// Batches is the number of batches executed, zero for packages.
	Batches int

	// Reason explains a skip.
	Reason string

	// Err is set when State is OutcomeFailed.
	Err error
}

// Skipped returns a skipped outcome with the given reason.
func Skipped(reason string) Outcome {
	return Outcome{State: OutcomeSkipped, Reason: reason}
}

// Succeeded returns a successful outcome that executed n batches.
func Succeeded(n int) Outcome {
	return Outcome{State: OutcomeSucceeded, Batches: n}
}

// Failed returns a failed outcome wrapping err.
func Failed(err error) Outcome {
	return Outcome{State: OutcomeFailed, Err: err}
}
