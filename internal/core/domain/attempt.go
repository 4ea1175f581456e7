package domain

import (
	"fmt"
	"time"
)

// FailureClass tells the dispatcher how to react to a failed attempt.
type FailureClass string

const (
	FailureRetryable    FailureClass = "retryable"
	FailureNonRetryable FailureClass = "non_retryable"
)

// AttemptResult records a single attempt against one endpoint.
type AttemptResult struct {
	RequestID string        `json:"request_id"`
	Region    string        `json:"region"`
	Attempt   int           `json:"attempt"` // 1-based across the whole request
	Success   bool          `json:"success"`
	Class     FailureClass  `json:"class,omitempty"`
	Err       error         `json:"-"`
	Latency   time.Duration `json:"latency"`
	At        time.Time     `json:"at"`

	// CooldownUntil is when the region becomes selectable again after this
	// attempt put it into cool-down. Zero when no cool-down was set.
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
}

// ErrorMessage returns the attempt error text, or "" on success.
func (a AttemptResult) ErrorMessage() string {
	if a.Err == nil {
		return ""
	}
	return a.Err.Error()
}

// InvokeError is returned by inference collaborators to describe a failed
// call. Class, when set, overrides status-based classification.
type InvokeError struct {
	Region     string
	StatusCode int    // HTTP status, 0 when not applicable
	Code       string // service error type, e.g. "ThrottlingException"
	Message    string
	Class      FailureClass
	Err        error
}

func (e *InvokeError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Code != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s: %s (%d): %s", e.Region, e.Code, e.StatusCode, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d: %s", e.Region, e.StatusCode, msg)
	case e.Code != "":
		return fmt.Sprintf("%s: %s: %s", e.Region, e.Code, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Region, msg)
	}
}

func (e *InvokeError) Unwrap() error {
	return e.Err
}

// AttemptRecord is the journaled form of an attempt.
type AttemptRecord struct {
	RequestID string       `json:"request_id" db:"request_id"`
	Region    string       `json:"region"     db:"region"`
	Attempt   int          `json:"attempt"    db:"attempt"`
	Success   bool         `json:"success"    db:"success"`
	Class     FailureClass `json:"class"      db:"class"`
	Error     string       `json:"error_msg"  db:"error_msg"`
	LatencyMs int64        `json:"latency_ms" db:"latency_ms"`
	At        time.Time    `json:"at"         db:"attempted_at"`
}

// Record flattens the attempt for storage.
func (a AttemptResult) Record() AttemptRecord {
	return AttemptRecord{
		RequestID: a.RequestID,
		Region:    a.Region,
		Attempt:   a.Attempt,
		Success:   a.Success,
		Class:     a.Class,
		Error:     a.ErrorMessage(),
		LatencyMs: a.Latency.Milliseconds(),
		At:        a.At,
	}
}
