package domain

import (
	"fmt"
	"time"
)

// SourceKind tells where the identifiers of a run came from.
type SourceKind string

const (
	SourcePDF   SourceKind = "pdf"
	SourceExcel SourceKind = "excel"
)

func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(s) {
	case SourcePDF, SourceExcel:
		return SourceKind(s), nil
	default:
		return "", fmt.Errorf("%w: unknown source kind %q", ErrInvalidInput, s)
	}
}

type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemFailure ItemStatus = "failure"
)

func ParseItemStatus(s string) (ItemStatus, error) {
	switch ItemStatus(s) {
	case "":
		return "", nil
	case ItemSuccess, ItemFailure:
		return ItemStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown item status %q", ErrInvalidInput, s)
	}
}

// Run is one ledger row per processing run.
type Run struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	Operator   string     `json:"operator"`
	SourceKind SourceKind `json:"source_kind"`
	Total      int        `json:"total"`
	Successes  int        `json:"successes"`
	Failures   int        `json:"failures"`
}

// SuccessRate is a percentage; zero for an empty run.
func (r Run) SuccessRate() float64 {
	return successRate(r.Successes, r.Total)
}

// ItemOutcome is the recorded result of one attempted identifier.
type ItemOutcome struct {
	ID         int64      `json:"id"`
	RunID      int64      `json:"run_id"`
	Identifier Identifier `json:"identifier"`
	Status     ItemStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
	Operator   string     `json:"operator,omitempty"`
}

type Stats struct {
	TotalRuns      int     `json:"total_runs"`
	TotalItems     int     `json:"total_items"`
	TotalSuccesses int     `json:"total_successes"`
	TotalFailures  int     `json:"total_failures"`
	SuccessRate    float64 `json:"success_rate"`
}

// NewStats derives the success rate from the counters.
func NewStats(runs, items, successes, failures int) Stats {
	return Stats{
		TotalRuns:      runs,
		TotalItems:     items,
		TotalSuccesses: successes,
		TotalFailures:  failures,
		SuccessRate:    successRate(successes, items),
	}
}

func successRate(successes, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(successes) / float64(total) * 100
}

// WorkingSetMode selects which identifiers of a table a run submits.
type WorkingSetMode string

const (
	ModeAll      WorkingSetMode = "all"
	ModeFailures WorkingSetMode = "failures"
	ModePending  WorkingSetMode = "pending"
	ModeSubset   WorkingSetMode = "subset"
)

func ParseWorkingSetMode(s string) (WorkingSetMode, error) {
	switch WorkingSetMode(s) {
	case "":
		return ModeAll, nil
	case ModeAll, ModeFailures, ModePending, ModeSubset:
		return WorkingSetMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown working set mode %q", ErrInvalidInput, s)
	}
}

// RunRequest is everything a batch submission needs up front.
type RunRequest struct {
	Operator    string
	Secret      string
	SourceKind  SourceKind
	Identifiers []Identifier
	Mode        WorkingSetMode
	Subset      []int
}

// RunStream is a started run: its ledger id and its progress events.
type RunStream struct {
	RunID  int64
	Total  int
	Events <-chan ProgressEvent
}

// RunContext carries the counters of one submission run.
type RunContext struct {
	Total     int
	Attempted int
	Successes int
	Failures  int
	StartedAt time.Time
}

func NewRunContext(total int, startedAt time.Time) *RunContext {
	return &RunContext{Total: total, StartedAt: startedAt}
}

func (rc *RunContext) Record(success bool) {
	rc.Attempted++
	if success {
		rc.Successes++
		return
	}
	rc.Failures++
}

// Progress is the attempted fraction in [0,1].
func (rc *RunContext) Progress() float64 {
	if rc.Total == 0 {
		return 1
	}
	return float64(rc.Attempted) / float64(rc.Total)
}
