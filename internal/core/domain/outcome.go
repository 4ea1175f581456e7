package domain

import "time"

// OutcomeKind is the terminal state of a logical request.
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeExhausted    OutcomeKind = "exhausted"
	OutcomeNonRetryable OutcomeKind = "non_retryable"
	OutcomeCanceled     OutcomeKind = "canceled"
)

// Outcome is returned to the caller of a logical request.
type Outcome struct {
	RequestID string      `json:"request_id"`
	Kind      OutcomeKind `json:"kind"`

	// Response is owned by the collaborator; nil unless Kind is success.
	Response any    `json:"response,omitempty"`
	Region   string `json:"region,omitempty"` // region that served the response

	// FailedRegions lists regions that failed during this request, in the
	// order they first failed.
	FailedRegions []string        `json:"failed_regions"`
	Attempts      []AttemptResult `json:"attempts"`
	Err           error           `json:"-"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Succeeded reports whether the request produced a response.
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Kind == OutcomeSuccess
}

// OutcomeSummary is the journaled form of an outcome.
type OutcomeSummary struct {
	RequestID     string      `json:"request_id"     db:"request_id"`
	Kind          OutcomeKind `json:"kind"           db:"kind"`
	Region        string      `json:"region"         db:"region"`
	FailedRegions []string    `json:"failed_regions" db:"-"`
	AttemptCount  int         `json:"attempt_count"  db:"attempt_count"`
	Error         string      `json:"error_msg"      db:"error_msg"`
	StartedAt     time.Time   `json:"started_at"     db:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"    db:"finished_at"`
}

// Summary flattens the outcome for storage.
func (o *Outcome) Summary() OutcomeSummary {
	s := OutcomeSummary{
		RequestID:     o.RequestID,
		Kind:          o.Kind,
		Region:        o.Region,
		FailedRegions: append([]string(nil), o.FailedRegions...),
		AttemptCount:  len(o.Attempts),
		StartedAt:     o.StartedAt,
		FinishedAt:    o.FinishedAt,
	}
	if o.Err != nil {
		s.Error = o.Err.Error()
	}
	return s
}
