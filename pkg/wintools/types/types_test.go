package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMemorySnapshot_Invariants(t *testing.T) {
	tests := []struct {
		name      string
		total     uint64
		available uint64
	}{
		{"normal", 16 * uint64(GiB), 6 * uint64(GiB)},
		{"available above total", 8 * uint64(GiB), 9 * uint64(GiB)},
		{"nothing available", 4 * uint64(GiB), 0},
		{"zero total", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemorySnapshot(tt.total, tt.available, time.Now())
			assert.LessOrEqual(t, s.Used, s.Total)
			assert.LessOrEqual(t, s.Available, s.Total)
			assert.Equal(t, s.Total-s.Used, s.Available)
		})
	}
}

func TestThresholds_Classify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		delta int64
		want  Improvement
	}{
		{-5 * MiB, ImprovementOptimized},
		{0, ImprovementMinor},
		{9 * MiB, ImprovementMinor},
		{10 * MiB, ImprovementModerate},
		{49 * MiB, ImprovementModerate},
		{50 * MiB, ImprovementSignificant},
		{2 * GiB, ImprovementSignificant},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, th.Classify(tt.delta), "delta %d", tt.delta)
	}
}

func TestReclamationResult_Delta(t *testing.T) {
	now := time.Now()
	r := ReclamationResult{
		Before: NewMemorySnapshot(uint64(8*GiB), uint64(2*GiB), now),
		After:  NewMemorySnapshot(uint64(8*GiB), uint64(2*GiB-MiB), now),
	}
	assert.Equal(t, -MiB, r.Delta())
	assert.Equal(t, ImprovementOptimized, r.Classify(DefaultThresholds()))
}

func TestAllStagesOrder(t *testing.T) {
	assert.Equal(t, []Stage{StageTrimSelf, StageCollect, StageCompact, StageTrimAll}, AllStages())
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	got, err := ParseKind("RAM")
	require.NoError(t, err)
	assert.Equal(t, KindMemory, got)

	_, err = ParseKind("gpu")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"1024", 1024, false},
		{"50MiB", 50 * MiB, false},
		{"10 MiB", 10 * MiB, false},
		{"10M", 10 * MiB, false},
		{"1g", GiB, false},
		{"1MB", 1000 * 1000, false},
		{"", 0, true},
		{"-5M", 0, true},
		{"lots", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSize)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1.5 MiB", FormatSize(MiB+MiB/2))
	assert.Equal(t, "-1.0 KiB", FormatSize(-KiB))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1d", Day, false},
		{"7d", 7 * Day, false},
		{"1.5d", 36 * time.Hour, false},
		{"24h", Day, false},
		{"90m", 90 * time.Minute, false},
		{"0s", 0, false},
		{"-1d", 0, true},
		{"xd", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDuration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSweepResult_Merge(t *testing.T) {
	a := SweepResult{ItemsRemoved: 1, BytesFreed: 100, Targets: []SweepTarget{{Path: "/a"}}}
	b := SweepResult{ItemsRemoved: 2, DirsRemoved: 1, BytesFreed: 50, Targets: []SweepTarget{{Path: "/b"}},
		Skipped: []SkippedItem{{Path: "/b/x", Reason: SkipInUse}}, Cancelled: true}
	a.Merge(b)

	assert.Equal(t, 3, a.ItemsRemoved)
	assert.Equal(t, 1, a.DirsRemoved)
	assert.Equal(t, int64(150), a.BytesFreed)
	assert.Len(t, a.Targets, 2)
	assert.Len(t, a.Skipped, 1)
	assert.True(t, a.Cancelled)
}
