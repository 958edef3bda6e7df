// Package fetch executes remote-to-local transfers with bounded parallelism.
//
// A failing transfer is captured in its own result and never aborts sibling
// tasks; every submitted task yields exactly one result, reported in
// submission order regardless of completion order. Retry policy belongs to
// the caller: each transfer is attempted at most once here.
package fetch

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joyprojects/goes-fetch/internal/metrics"
)

// Task pairs a remote key with its local destination.
type Task struct {
	Key       string
	LocalPath string
}

// Result is the outcome of one task. Err is nil on success; the task is
// echoed so pairing survives any reordering by the caller.
type Result struct {
	Task  Task
	Bytes int64
	Err   error
}

// Downloader transfers one remote object to a local path, returning the
// byte count. Implementations must be safe for concurrent use and create
// destination directories race-safely.
type Downloader interface {
	Download(ctx context.Context, key, localPath string) (int64, error)
}

// Orchestrator runs transfer batches against a Downloader.
type Orchestrator struct {
	dl             Downloader
	maxConcurrency int
	log            *slog.Logger
}

// New creates an orchestrator. A non-positive maxConcurrency defaults to
// the available hardware parallelism.
func New(dl Downloader, maxConcurrency int) *Orchestrator {
	if maxConcurrency < 1 {
		maxConcurrency = runtime.NumCPU()
	}
	return &Orchestrator{
		dl:             dl,
		maxConcurrency: maxConcurrency,
		log:            slog.With("component", "fetch"),
	}
}

// FetchAll transfers every task with at most maxConcurrency in flight.
// Cancellation marks not-yet-finished tasks with the context error while
// preserving every already-completed result. The returned slice always has
// one entry per task, in submission order.
func (o *Orchestrator) FetchAll(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	sem := semaphore.NewWeighted(int64(o.maxConcurrency))
	var wg sync.WaitGroup

	startTime := time.Now()
	for i, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: mark this and all remaining tasks.
			for j := i; j < len(tasks); j++ {
				results[j] = Result{Task: tasks[j], Err: err}
			}
			break
		}

		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			defer sem.Release(1)

			// Each goroutine owns exactly one slot of results.
			results[i] = o.fetchOne(ctx, task)
		}(i, task)
	}
	wg.Wait()

	var bytes int64
	failures := 0
	for _, r := range results {
		bytes += r.Bytes
		if r.Err != nil {
			failures++
		}
	}
	o.log.Info("fetch batch complete",
		"tasks", len(tasks),
		"failures", failures,
		"bytes", bytes,
		"duration", time.Since(startTime).String(),
	)
	return results
}

func (o *Orchestrator) fetchOne(ctx context.Context, task Task) Result {
	start := time.Now()
	n, err := o.dl.Download(ctx, task.Key, task.LocalPath)
	if err != nil {
		o.log.Warn("fetch failed", "key", task.Key, "error", err)
		if m := metrics.Get(); m != nil {
			m.IncFetches("failure")
		}
		return Result{Task: task, Err: err}
	}
	if m := metrics.Get(); m != nil {
		m.IncFetches("success")
		m.AddFetchedBytes(float64(n))
		m.ObserveFetchDuration(time.Since(start).Seconds())
	}
	return Result{Task: task, Bytes: n}
}

// Successes returns the local paths of successful results, in order.
func Successes(results []Result) []string {
	var out []string
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Task.LocalPath)
		}
	}
	return out
}

// Failures returns the failed results, in order.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
