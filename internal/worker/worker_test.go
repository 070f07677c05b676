package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueue_FIFO(t *testing.T) {
	q := newJobQueue()

	for _, name := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(Job{Name: name}))
	}

	j1, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "a", j1.Name)

	j2, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "b", j2.Name)

	j3, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "c", j3.Name)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestJobQueue_EnqueueAfterClose(t *testing.T) {
	q := newJobQueue()
	q.Close()

	assert.False(t, q.Enqueue(Job{Name: "late"}))
}

func TestWorker_ExecutesInSubmissionOrder(t *testing.T) {
	w := New()
	w.Start()
	defer w.Stop()

	var mu sync.Mutex
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		require.True(t, w.Submit(Job{
			Name: "ordered",
			Run: func() error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			},
		}))
	}

	w.DrainBlocking()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestWorker_DrainBlocking_WaitsForPriorJobs(t *testing.T) {
	w := New()
	w.Start()
	defer w.Stop()

	ran := make(chan struct{})
	require.True(t, w.Submit(Job{
		Name: "slow",
		Run: func() error {
			time.Sleep(20 * time.Millisecond)
			close(ran)
			return nil
		},
	}))

	w.DrainBlocking()

	select {
	case <-ran:
	default:
		t.Fatal("DrainBlocking returned before the queued job completed")
	}
}

func TestWorker_DrainBlocking_Inactive(t *testing.T) {
	w := New()

	// Must not deadlock on a never-started worker.
	done := make(chan struct{})
	go func() {
		w.DrainBlocking()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DrainBlocking on an inactive worker deadlocked")
	}
}

func TestWorker_JobErrorDoesNotStallLaterJobs(t *testing.T) {
	w := New()
	w.Start()
	defer w.Stop()

	var mu sync.Mutex
	var seen []string
	require.True(t, w.Submit(Job{Name: "fails", Run: func() error {
		mu.Lock()
		seen = append(seen, "fails")
		mu.Unlock()
		return errors.New("disk full")
	}}))
	require.True(t, w.Submit(Job{Name: "succeeds", Run: func() error {
		mu.Lock()
		seen = append(seen, "succeeds")
		mu.Unlock()
		return nil
	}}))

	w.DrainBlocking()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"fails", "succeeds"}, seen)
}

func TestWorker_StopRejectsLaterSubmissions(t *testing.T) {
	w := New()
	w.Start()
	w.Stop()

	assert.False(t, w.Submit(Job{Name: "late", Run: func() error { return nil }}))
	assert.False(t, w.IsActive())
}

func TestWorker_StopRunsQueuedJobs(t *testing.T) {
	w := New()
	w.Start()

	var mu sync.Mutex
	runs := 0
	for i := 0; i < 10; i++ {
		require.True(t, w.Submit(Job{Name: "counted", Run: func() error {
			mu.Lock()
			runs++
			mu.Unlock()
			return nil
		}}))
	}

	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, runs, "Stop must run already-queued jobs")
}

func TestWorker_ConcurrentSubmitPreservesPerGoroutineMonotonicity(t *testing.T) {
	w := New()
	w.Start()
	defer w.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				seq := g*100 + i
				w.Submit(Job{Name: "concurrent", Run: func() error {
					mu.Lock()
					order = append(order, seq)
					mu.Unlock()
					return nil
				}})
			}
		}()
	}
	wg.Wait()
	w.DrainBlocking()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 100)

	// Within each submitting goroutine, execution order matches
	// submission order.
	last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
	for _, seq := range order {
		g := seq / 100
		assert.Greater(t, seq%100, last[g], "goroutine %d out of order", g)
		last[g] = seq % 100
	}
}
