package domain

import "time"

type EventKind string

const (
	EventStarted       EventKind = "started"
	EventItemAttempted EventKind = "item-attempted"
	EventFinalizing    EventKind = "finalizing"
	EventCompleted     EventKind = "completed"
	EventFailed        EventKind = "failed"
)

// ReasonCancelled is the failure reason when the consumer cancels a run.
const ReasonCancelled = "cancelled"

// ProgressEvent is a tagged union keyed by Kind. Only the fields relevant
// to the kind are set:
//
//	started         Total, Estimate
//	item-attempted  Identifier, Index (1-based), Total, Progress, Success, Reason, Successes
//	finalizing      (none)
//	completed       Elapsed, Total, Successes
//	failed          Reason
type ProgressEvent struct {
	Kind       EventKind     `json:"kind"`
	Total      int           `json:"total,omitempty"`
	Estimate   time.Duration `json:"estimate,omitempty"`
	Identifier Identifier    `json:"identifier,omitempty"`
	Index      int           `json:"index,omitempty"`
	Progress   float64       `json:"progress,omitempty"`
	Success    bool          `json:"success,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Successes  int           `json:"successes,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

func (e ProgressEvent) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}

func StartedEvent(total int, estimate time.Duration) ProgressEvent {
	return ProgressEvent{Kind: EventStarted, Total: total, Estimate: estimate}
}

func ItemAttemptedEvent(id Identifier, rc *RunContext, success bool, reason string) ProgressEvent {
	return ProgressEvent{
		Kind:       EventItemAttempted,
		Identifier: id,
		Index:      rc.Attempted,
		Total:      rc.Total,
		Progress:   rc.Progress(),
		Success:    success,
		Reason:     reason,
		Successes:  rc.Successes,
	}
}

func FinalizingEvent() ProgressEvent {
	return ProgressEvent{Kind: EventFinalizing}
}

func CompletedEvent(elapsed time.Duration, total, successes int) ProgressEvent {
	return ProgressEvent{Kind: EventCompleted, Elapsed: elapsed, Total: total, Successes: successes}
}

func FailedEvent(reason string) ProgressEvent {
	return ProgressEvent{Kind: EventFailed, Reason: reason}
}
