package schedule

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/wintools/pkg/wintools/session"
	"github.com/jamesainslie/wintools/pkg/wintools/types"
)

type fakeStarter struct {
	mu       sync.Mutex
	started  []types.Kind
	triggers []string
	err      error
}

func (f *fakeStarter) Start(_ context.Context, kind types.Kind, trigger string, _ func(types.Progress), _ func(types.SessionRecord)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.started = append(f.started, kind)
	f.triggers = append(f.triggers, trigger)
	return fmt.Sprintf("id-%d", len(f.started)), nil
}

func (f *fakeStarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(&fakeStarter{}, []Entry{{Kind: types.KindTemp, Spec: "whenever"}})
	assert.Error(t, err)
}

func TestParseEntry(t *testing.T) {
	e, err := ParseEntry("ram", "@hourly")
	require.NoError(t, err)
	assert.Equal(t, Entry{Kind: types.KindMemory, Spec: "@hourly"}, e)

	_, err = ParseEntry("defrag", "@hourly")
	assert.ErrorIs(t, err, types.ErrUnknownKind)

	_, err = ParseEntry("temp", "61 * * * *")
	assert.Error(t, err)
}

func TestFire_StartsWithTrigger(t *testing.T) {
	st := &fakeStarter{}
	s, err := New(st, []Entry{{Kind: types.KindDNS, Spec: "@daily"}})
	require.NoError(t, err)

	s.fire(Entry{Kind: types.KindDNS})
	assert.Equal(t, []types.Kind{types.KindDNS}, st.started)
	assert.Equal(t, []string{Trigger}, st.triggers)
	assert.Equal(t, int64(1), s.Fired())
}

func TestFire_BusyIsSkipped(t *testing.T) {
	st := &fakeStarter{err: fmt.Errorf("%w: memory", session.ErrBusy)}
	s, err := New(st, nil)
	require.NoError(t, err)

	s.fire(Entry{Kind: types.KindMemory})
	s.fire(Entry{Kind: types.KindMemory})
	assert.Equal(t, int64(0), s.Fired())
	assert.Equal(t, int64(2), s.Skipped())
}

func TestFire_AfterCancelIsIgnored(t *testing.T) {
	st := &fakeStarter{}
	s, err := New(st, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.ctx.Store(&ctx)

	s.fire(Entry{Kind: types.KindTemp})
	assert.Zero(t, st.count())
}

func TestRun_FiresOnSchedule(t *testing.T) {
	st := &fakeStarter{}
	s, err := New(st, []Entry{{Kind: types.KindTemp, Spec: "@every 1s"}}, WithLocation(time.UTC))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return st.count() > 0 }, 5*time.Second, 50*time.Millisecond)

	up := s.Upcoming()
	require.Len(t, up, 1)
	assert.Equal(t, types.KindTemp, up[0].Kind)
	assert.False(t, up[0].Next.IsZero())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_NoEntriesBlocksUntilCancel(t *testing.T) {
	s, err := New(&fakeStarter{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Run(ctx))
	assert.Empty(t, s.Upcoming())
}

func TestRegistrySatisfiesStarter(t *testing.T) {
	var _ Starter = (*session.Registry)(nil)
}
