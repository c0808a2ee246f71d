// ABOUTME: Tests for the task registry lifecycle
// ABOUTME: Covers creation, cooperative cancellation, progress events, and cleanup

package tasks

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore()

	rec := s.Create("long_running_task", 5)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, StatePending, rec.State)
	assert.Equal(t, 5, rec.TotalSteps)
	assert.Equal(t, 1, s.Count())

	s.SetState(rec.ID, StateRunning)
	got, ok := s.Get(rec.ID)
	require.True(t, ok)
	assert.Equal(t, StateRunning, got.State)

	s.Remove(rec.ID)
	_, ok = s.Get(rec.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, s.Count())
}

func TestStore_CountObserver(t *testing.T) {
	s := NewStore()
	var counts []int
	s.SetCountObserver(func(n int) { counts = append(counts, n) })

	a := s.Create("t", 1)
	b := s.Create("t", 1)
	s.Remove(a.ID)
	s.Remove(b.ID)

	assert.Equal(t, []int{1, 2, 1, 0}, counts)
}

func TestStore_UniqueIDs(t *testing.T) {
	s := NewStore()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		rec := s.Create("t", 1)
		assert.False(t, seen[rec.ID], "duplicate task id %s", rec.ID)
		seen[rec.ID] = true
	}
}

func TestStore_Cancel(t *testing.T) {
	s := NewStore()
	rec := s.Create("t", 3)

	assert.True(t, s.Cancel(rec.ID))
	got, ok := s.Get(rec.ID)
	require.True(t, ok)
	assert.True(t, got.Cancelled)
	// Cancel is advisory: state is untouched until the handler observes it
	assert.Equal(t, StatePending, got.State)

	assert.False(t, s.Cancel("no-such-task"))
}

func TestStore_AdvanceEmitsProgress(t *testing.T) {
	s := NewStore()
	rec := s.Create("t", 3)

	s.Advance(rec.ID, 1, "step 1/3")
	s.Advance(rec.ID, 2, "step 2/3")

	got, _ := s.Get(rec.ID)
	assert.Equal(t, 2, got.CurrentStep)

	p := <-s.Progress()
	assert.Equal(t, rec.ID, p.TaskID)
	assert.Equal(t, 1, p.Current)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, "step 1/3", p.Message)

	p = <-s.Progress()
	assert.Equal(t, 2, p.Current)
}

func TestStore_AdvanceIsMonotonic(t *testing.T) {
	s := NewStore()
	rec := s.Create("t", 5)

	s.Advance(rec.ID, 3, "")
	s.Advance(rec.ID, 1, "") // stale update must not move the step backwards

	got, _ := s.Get(rec.ID)
	assert.Equal(t, 3, got.CurrentStep)
}

func TestStore_ProgressNeverBlocks(t *testing.T) {
	s := NewStore()
	rec := s.Create("t", progressBuffer * 2)

	// Nothing draining the channel: Advance must not block
	done := make(chan struct{})
	go func() {
		for i := 1; i <= progressBuffer*2; i++ {
			s.Advance(rec.ID, i, "")
		}
		close(done)
	}()
	<-done
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := s.Create("t", 10)
			for step := 1; step <= 10; step++ {
				s.Advance(rec.ID, step, "")
				s.Get(rec.ID)
			}
			s.Cancel(rec.ID)
			s.Remove(rec.ID)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, s.Count())
}
