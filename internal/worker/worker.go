// Package worker implements the ordered, off-critical-path write
// executor for session data. Write jobs submitted from the foreground
// control goroutine run one at a time, in submission order, on a single
// background goroutine: job N's side effects are observable before job
// N+1 begins.
package worker

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Worker consumes a FIFO queue of write jobs on one background
// goroutine.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - DrainBlocking(): safe from any goroutine; blocks until every job
//     submitted before the call has completed
//   - loop(): runs on exactly one goroutine, started by Start()
//
// Job errors are logged with the job name and processing continues.
// Retrying would reorder writes relative to later jobs, so recovery is
// left to the operator; the backend owns durability semantics.
type Worker struct {
	queue  *jobQueue
	active atomic.Bool
	wg     sync.WaitGroup
}

// New creates an idle worker. Call Start before submitting.
func New() *Worker {
	return &Worker{queue: newJobQueue()}
}

// Start launches the background loop. Starting an already-active
// worker is a no-op.
func (w *Worker) Start() {
	if !w.active.CompareAndSwap(false, true) {
		return
	}
	w.wg.Add(1)
	go w.loop()
}

// IsActive reports whether the background loop is running.
func (w *Worker) IsActive() bool {
	return w.active.Load()
}

// Submit enqueues a job for ordered background execution.
// Returns false if the worker has been stopped.
func (w *Worker) Submit(job Job) bool {
	return w.queue.Enqueue(job)
}

// DrainBlocking blocks until every job submitted before the call has
// completed. Jobs submitted after the call are not waited for.
//
// Implemented by enqueuing a sentinel job that signals a channel; FIFO
// ordering guarantees every earlier job has run when the sentinel does.
func (w *Worker) DrainBlocking() {
	if !w.active.Load() {
		return
	}

	done := make(chan struct{})
	ok := w.queue.Enqueue(Job{
		Name: "drain-sentinel",
		Run: func() error {
			close(done)
			return nil
		},
	})
	if !ok {
		// Queue closed after the active check; the loop is draining
		// whatever remains and will exit.
		w.wg.Wait()
		return
	}
	<-done
}

// Stop closes the queue and waits for already-queued jobs to finish.
// Submissions after Stop are rejected, and a stopped worker cannot be
// restarted. Stop is idempotent.
func (w *Worker) Stop() {
	w.queue.Close()
	w.wg.Wait()
}

// loop is the single-consumer job loop.
// All write execution happens here, preserving submission order.
func (w *Worker) loop() {
	defer w.wg.Done()
	defer w.active.Store(false)

	for {
		job, ok := w.queue.TryDequeue()
		if ok {
			w.runJob(job)
			continue
		}

		// Queue empty: wait for a signal. The signal channel closes
		// when the queue is closed, so this also observes shutdown.
		<-w.queue.Wait()
		if w.queue.Closed() && w.queue.Len() == 0 {
			return
		}
	}
}

func (w *Worker) runJob(job Job) {
	if job.Run == nil {
		return
	}
	if err := job.Run(); err != nil {
		// Log and continue: a failed write must not stall later writes.
		slog.Error("write job failed", "job", job.Name, "error", err)
		return
	}
	slog.Debug("write job completed", "job", job.Name)
}
