package config

import "slices"

type JobStatus string

type JobType string

type JobAction string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
)

const (
	JobTypeCategory JobType = "category_processing"
	JobTypeSeo      JobType = "seo_processing"
)

const (
	ActionStart  JobAction = "start"
	ActionPause  JobAction = "pause"
	ActionResume JobAction = "resume"
	ActionCancel JobAction = "cancel"
)

const (
	// ListLimit caps the number of jobs returned by a list call.
	ListLimit = 50

	// UncategorizedCategory is stored when the classifier finds no match.
	UncategorizedCategory = "uncategorized"
)

var (
	AllowedJobTypes = []JobType{JobTypeCategory, JobTypeSeo}
	AllowedStatuses = []JobStatus{
		JobStatusPending, JobStatusRunning, JobStatusPaused,
		JobStatusCompleted, JobStatusCancelled,
	}

	// ActiveStatuses are the states of the single system-wide active job.
	ActiveStatuses = []JobStatus{JobStatusPending, JobStatusRunning, JobStatusPaused}
)

// Transition describes one legal controller action.
type Transition struct {
	From []JobStatus
	To   JobStatus
}

var Transitions = map[JobAction]Transition{
	ActionStart:  {From: []JobStatus{JobStatusPending, JobStatusPaused}, To: JobStatusRunning},
	ActionPause:  {From: []JobStatus{JobStatusRunning}, To: JobStatusPaused},
	ActionResume: {From: []JobStatus{JobStatusPaused}, To: JobStatusRunning},
	ActionCancel: {From: []JobStatus{JobStatusPending, JobStatusRunning, JobStatusPaused}, To: JobStatusCancelled},
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusCancelled
}

func (s JobStatus) IsActive() bool {
	return slices.Contains(ActiveStatuses, s)
}

func (s JobStatus) Valid() bool {
	return slices.Contains(AllowedStatuses, s)
}

func (t JobType) Valid() bool {
	return slices.Contains(AllowedJobTypes, t)
}

// Allows reports whether the action may be applied to a job in status s.
func (a JobAction) Allows(s JobStatus) bool {
	tr, ok := Transitions[a]
	return ok && slices.Contains(tr.From, s)
}
