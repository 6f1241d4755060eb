package types

import "time"

// SessionState is the lifecycle position of a reclamation session.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateRunning   SessionState = "running"
	StateCompleted SessionState = "completed"
	StateFailed    SessionState = "failed"
)

// Terminal reports whether s ends a session.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// SessionRecord is the terminal outcome of one session, as delivered to the
// completion callback and kept in history.
type SessionRecord struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	State      SessionState  `json:"state"`
	Trigger    string        `json:"trigger,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`

	// Summary is the one-line human result.
	Summary string `json:"summary"`

	// Error is set for failed sessions.
	Error string `json:"error,omitempty"`

	// BytesFreed is the sweep total or the positive memory delta.
	BytesFreed int64 `json:"bytes_freed"`

	Memory *ReclamationResult `json:"memory,omitempty"`
	Sweep  *SweepResult       `json:"sweep,omitempty"`

	// Output is captured command output, if the session ran one.
	Output string `json:"output,omitempty"`
}

// Progress is an intermediate report from a running session.
type Progress struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`

	// Done and Total are step counters; Total is 0 when unknown.
	Done  int `json:"done"`
	Total int `json:"total"`

	Sweep *SweepProgress `json:"sweep,omitempty"`
}
