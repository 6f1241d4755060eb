package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/wintools/pkg/wintools/reclaimer"
	"github.com/jamesainslie/wintools/pkg/wintools/recyclebin"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

func discard(types.Progress) {}

type stepMemory struct {
	snaps []types.MemorySnapshot
	i     int
}

func (s *stepMemory) MemoryStrict(context.Context) (types.MemorySnapshot, error) {
	snap := s.snaps[s.i]
	if s.i < len(s.snaps)-1 {
		s.i++
	}
	return snap, nil
}

type nopTrimmer struct{}

func (nopTrimmer) TrimSelf() error  { return nil }
func (nopTrimmer) Trim(int32) error { return nil }

type pidList []int32

func (p pidList) Pids(context.Context) ([]int32, error) { return p, nil }

func gib(v float64) uint64 { return uint64(v * float64(types.GiB)) }

func TestMemoryRunner(t *testing.T) {
	mem := &stepMemory{snaps: []types.MemorySnapshot{
		types.NewMemorySnapshot(gib(16), gib(2.0), time.Time{}),
		types.NewMemorySnapshot(gib(16), gib(2.06), time.Time{}),
	}}
	r := MemoryRunner{
		Source:  mem,
		Trimmer: nopTrimmer{},
		Lister:  pidList{1, 2, 3},
		Options: []reclaimer.Option{reclaimer.WithSettle(reclaimer.Settle{}), reclaimer.WithSelfPID(99)},
	}

	var stages []string
	out, err := r.Run(context.Background(), func(p types.Progress) { stages = append(stages, p.Message) })
	require.NoError(t, err)

	assert.Equal(t, []string{"trim-self", "collect", "compact", "trim-all"}, stages)
	require.NotNil(t, out.Memory)
	assert.Equal(t, 3, out.Memory.ProcessesTrimmed)
	assert.Positive(t, out.BytesFreed)
	assert.Contains(t, out.Summary, "Significant improvement")
}

func TestMemorySummary(t *testing.T) {
	th := types.DefaultThresholds()
	res := func(before, after float64) *types.ReclamationResult {
		return &types.ReclamationResult{
			Before:           types.NewMemorySnapshot(gib(16), gib(before), time.Time{}),
			After:            types.NewMemorySnapshot(gib(16), gib(after), time.Time{}),
			ProcessesTrimmed: 7,
		}
	}
	assert.Contains(t, MemorySummary(res(2.0, 2.06), th), "Significant")
	assert.Contains(t, MemorySummary(res(2.0, 2.03), th), "Moderate")
	assert.Contains(t, MemorySummary(res(2.0, 2.001), th), "Minor")

	neg := MemorySummary(res(2.06, 2.0), th)
	assert.Equal(t, "Memory optimized (7 processes trimmed)", neg)
}

func TestSweepRunner(t *testing.T) {
	root := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{"a.tmp", "b.tmp"} {
		p := filepath.Join(root, name)
		require.NoError(t, os.WriteFile(p, make([]byte, 512), 0o644))
		require.NoError(t, os.Chtimes(p, old, old))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "fresh.tmp"), []byte("x"), 0o644))

	r := SweepRunner{
		Kind:    types.KindTemp,
		Targets: []types.SweepTarget{{Path: root}},
		MinAge:  types.Day,
	}
	var reports int
	out, err := r.Run(context.Background(), func(types.Progress) { reports++ })
	require.NoError(t, err)

	require.NotNil(t, out.Sweep)
	assert.Equal(t, 2, out.Sweep.ItemsRemoved)
	assert.Equal(t, int64(1024), out.BytesFreed)
	assert.Equal(t, "Temp cleanup: 2 files removed, 1.0 KiB freed", out.Summary)
	assert.Positive(t, reports)
	assert.FileExists(t, filepath.Join(root, "fresh.tmp"))
}

func TestSweepRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := SweepRunner{Kind: types.KindUpdateCache, Targets: []types.SweepTarget{{Path: t.TempDir(), Recursive: true}}}
	out, err := r.Run(ctx, discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, out.Sweep)
	assert.True(t, out.Sweep.Cancelled)
}

func TestSweepSummary(t *testing.T) {
	assert.Equal(t, "Temp cleanup: nothing to remove", SweepSummary(types.KindTemp, &types.SweepResult{}))
	assert.Equal(t, "Temp cleanup: nothing removed, 2 items in use or protected",
		SweepSummary(types.KindTemp, &types.SweepResult{Skipped: make([]types.SkippedItem, 2)}))
	assert.Equal(t, "Update cache cleanup: 1,200 files removed, 3.0 MiB freed, 4 folders (1 skipped)",
		SweepSummary(types.KindUpdateCache, &types.SweepResult{
			ItemsRemoved: 1200, DirsRemoved: 4, BytesFreed: 3 * types.MiB,
			Skipped: make([]types.SkippedItem, 1),
		}))
}

func TestCommandRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}

	ok := CommandRunner{Name: "sh", Args: []string{"-c", "echo flushed"}, Success: "flushed it"}
	out, err := ok.Run(context.Background(), discard)
	require.NoError(t, err)
	assert.Equal(t, "flushed it", out.Summary)
	assert.Equal(t, "flushed\n", out.Output)

	bad := CommandRunner{Name: "sh", Args: []string{"-c", "echo partial; printf 'The requested operation requires elevation.\\n' >&2; exit 3"}}
	out, err = bad.Run(context.Background(), discard)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "The requested operation requires elevation.\n", cmdErr.Stderr)
	assert.Equal(t, "partial\n", out.Output)

	slow := CommandRunner{Name: "sh", Args: []string{"-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}
	_, err = slow.Run(context.Background(), discard)
	require.Error(t, err)
	assert.False(t, errors.As(err, &cmdErr), "a timeout is not an exit status")

	missing := CommandRunner{Name: "definitely-not-a-real-binary-wintools"}
	_, err = missing.Run(context.Background(), discard)
	assert.Error(t, err)
}

func TestDNSFlushRunner(t *testing.T) {
	r := DNSFlushRunner()
	if runtime.GOOS == "windows" {
		assert.Equal(t, "ipconfig", r.Name)
		assert.Equal(t, []string{"/flushdns"}, r.Args)
	}
	assert.Equal(t, DefaultCommandTimeout, r.Timeout)
}

type fakeBin struct {
	info recyclebin.Info
	err  error
}

func (f fakeBin) Empty(context.Context) (recyclebin.Info, error) { return f.info, f.err }

func TestRecycleBinRunner(t *testing.T) {
	out, err := RecycleBinRunner{Bin: fakeBin{info: recyclebin.Info{Items: 3, Size: 2048}}}.Run(context.Background(), discard)
	require.NoError(t, err)
	assert.Equal(t, "Recycle bin emptied: 3 items, 2.0 KiB", out.Summary)
	assert.Equal(t, int64(2048), out.BytesFreed)

	out, err = RecycleBinRunner{Bin: fakeBin{err: recyclebin.ErrAlreadyEmpty}}.Run(context.Background(), discard)
	require.NoError(t, err, "an empty bin is not a failure")
	assert.Contains(t, out.Summary, "already empty")

	_, err = RecycleBinRunner{Bin: fakeBin{err: errors.New("shell unavailable")}}.Run(context.Background(), discard)
	assert.ErrorContains(t, err, "shell unavailable")
}
