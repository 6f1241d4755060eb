package types

// SweepTarget is a directory handed to the sweeper.
type SweepTarget struct {
	// Path is the root directory.
	Path string `json:"path" mapstructure:"path"`

	// Recursive removes every file under Path regardless of depth and then
	// prunes empty directories. Non-recursive targets only age-gate the top
	// level and apply the all-or-nothing rule to subdirectories.
	Recursive bool `json:"recursive" mapstructure:"recursive"`
}

// SkipReason says why an item was left in place.
type SkipReason string

const (
	SkipInUse      SkipReason = "in-use"
	SkipPermission SkipReason = "permission"
	SkipLink       SkipReason = "link"
	SkipOutside    SkipReason = "outside-root"
	SkipMissing    SkipReason = "missing"
	SkipOther      SkipReason = "other"
)

// SkippedItem is one item a best-effort loop could not act on. The same
// shape is used for files, directories and processes.
type SkippedItem struct {
	Path   string     `json:"path"`
	Reason SkipReason `json:"reason"`
	Err    string     `json:"error,omitempty"`
}

// SweepResult accumulates the outcome of a sweep.
type SweepResult struct {
	// ItemsRemoved counts deleted files. Removed directories are not
	// included; see DirsRemoved.
	ItemsRemoved int `json:"items_removed"`

	// DirsRemoved counts subdirectories removed, recursively or empty.
	DirsRemoved int `json:"dirs_removed"`

	// BytesFreed sums the sizes of files that were actually deleted.
	BytesFreed int64 `json:"bytes_freed"`

	// Targets lists the targets that were attempted, in order.
	Targets []SweepTarget `json:"targets"`

	// Skipped lists items that could not be removed.
	Skipped []SkippedItem `json:"skipped,omitempty"`

	// Excluded counts files kept because they matched an exclude pattern.
	Excluded int `json:"excluded,omitempty"`

	// Cancelled is set when the sweep stopped early; counters cover the
	// work done until then.
	Cancelled bool `json:"cancelled,omitempty"`
}

// Merge folds other into r.
func (r *SweepResult) Merge(other SweepResult) {
	r.ItemsRemoved += other.ItemsRemoved
	r.DirsRemoved += other.DirsRemoved
	r.BytesFreed += other.BytesFreed
	r.Targets = append(r.Targets, other.Targets...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Excluded += other.Excluded
	r.Cancelled = r.Cancelled || other.Cancelled
}

// SweepProgress is reported while a sweep runs.
type SweepProgress struct {
	Target       string `json:"target"`
	ItemsRemoved int    `json:"items_removed"`
	BytesFreed   int64  `json:"bytes_freed"`
	Skipped      int    `json:"skipped"`
}
