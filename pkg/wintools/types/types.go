// Package types holds the values passed between the wintools subsystems:
// memory snapshots, reclamation and sweep results, session kinds, and the
// size and duration helpers used by configuration.
package types

import (
	"time"
)

// MemorySnapshot is the physical memory picture at one instant.
// Used always equals Total minus Available and Available never exceeds Total.
type MemorySnapshot struct {
	// Total is the installed physical memory in bytes.
	Total uint64 `json:"total"`

	// Available is memory the OS can hand out without paging.
	Available uint64 `json:"available"`

	// Used is Total - Available.
	Used uint64 `json:"used"`

	// TakenAt is when the counters were read.
	TakenAt time.Time `json:"taken_at"`
}

// NewMemorySnapshot builds a snapshot, clamping available to total and
// deriving used.
func NewMemorySnapshot(total, available uint64, at time.Time) MemorySnapshot {
	if available > total {
		available = total
	}
	return MemorySnapshot{
		Total:     total,
		Available: available,
		Used:      total - available,
		TakenAt:   at,
	}
}

// UsedPercent returns Used as a percentage of Total, or 0 when Total is 0.
func (s MemorySnapshot) UsedPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Total) * 100
}

// Stage identifies one step of the memory reclamation pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageTrimSelf Stage = "trim-self"
	StageCollect  Stage = "collect"
	StageCompact  Stage = "compact"
	StageTrimAll  Stage = "trim-all"
)

// AllStages returns the pipeline stages in their fixed order.
func AllStages() []Stage {
	return []Stage{StageTrimSelf, StageCollect, StageCompact, StageTrimAll}
}

// Improvement is a coarse label for a reclamation delta.
type Improvement string

const (
	ImprovementSignificant Improvement = "significant"
	ImprovementModerate    Improvement = "moderate"
	ImprovementMinor       Improvement = "minor"

	// ImprovementOptimized is reported for negative deltas. Available
	// memory fluctuates, so no numeric claim is made.
	ImprovementOptimized Improvement = "optimized"
)

// Thresholds are the lower bounds, in bytes, for the significant and
// moderate labels.
type Thresholds struct {
	Significant int64 `json:"significant"`
	Moderate    int64 `json:"moderate"`
}

// DefaultThresholds are 50 MiB and 10 MiB.
func DefaultThresholds() Thresholds {
	return Thresholds{Significant: 50 * MiB, Moderate: 10 * MiB}
}

// Classify labels delta.
func (t Thresholds) Classify(delta int64) Improvement {
	switch {
	case delta < 0:
		return ImprovementOptimized
	case delta >= t.Significant:
		return ImprovementSignificant
	case delta >= t.Moderate:
		return ImprovementModerate
	default:
		return ImprovementMinor
	}
}

// ReclamationResult is the outcome of one memory reclamation run.
// After is always sampled once every stage in Stages has returned.
type ReclamationResult struct {
	// Stages lists the stages that ran, in order.
	Stages []Stage `json:"stages"`

	// Before is sampled prior to the first stage.
	Before MemorySnapshot `json:"before"`

	// After is sampled after the last stage and the settle delay.
	After MemorySnapshot `json:"after"`

	// Elapsed covers the whole run including settle delays.
	Elapsed time.Duration `json:"elapsed"`

	// ProcessesTrimmed counts other processes whose working set was trimmed.
	ProcessesTrimmed int `json:"processes_trimmed"`

	// ProcessesSkipped counts processes that could not be opened or trimmed.
	ProcessesSkipped int `json:"processes_skipped"`

	// StageErrors records soft failures keyed by stage. A stage listed here
	// still appears in Stages.
	StageErrors map[Stage]string `json:"stage_errors,omitempty"`
}

// Delta is the change in available memory in bytes. Positive means memory
// was freed.
func (r *ReclamationResult) Delta() int64 {
	return int64(r.After.Available) - int64(r.Before.Available)
}

// Classify labels Delta using t.
func (r *ReclamationResult) Classify(t Thresholds) Improvement {
	return t.Classify(r.Delta())
}
