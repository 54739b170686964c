// Package engine drives a complete run: it owns the worker pool, wires the
// camera, geodesic, and radiation stages together, walks snapshots and
// refinement levels, and reports progress.
package engine

import (
	"runtime"
	"sync"
)

// tasksPerWorker controls how finely Map splits an index range. A few chunks
// per worker keeps the tail of an uneven workload from idling the pool.
const tasksPerWorker = 4

// rangeTask asks one worker to process [lo, hi) of some indexed workload.
type rangeTask struct {
	id     int
	lo, hi int
	fn     func(worker, lo, hi int)
}

type rangeResult struct {
	id int
}

// WorkerPool runs range tasks on a fixed set of goroutines. Workers are
// identified by a stable index so stages can keep per-worker scratch buffers.
type WorkerPool struct {
	tasks      chan rangeTask
	results    chan rangeResult
	numWorkers int
	wg         sync.WaitGroup
}

// NewWorkerPool creates a pool with the given number of workers, defaulting
// to the CPU count.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	buffer := numWorkers*tasksPerWorker + 1
	return &WorkerPool{
		tasks:      make(chan rangeTask, buffer),
		results:    make(chan rangeResult, buffer),
		numWorkers: numWorkers,
	}
}

// Start launches the workers.
func (wp *WorkerPool) Start() {
	for w := 0; w < wp.numWorkers; w++ {
		wp.wg.Add(1)
		go wp.run(w)
	}
}

// Stop drains outstanding tasks and shuts the workers down.
func (wp *WorkerPool) Stop() {
	close(wp.tasks)
	wp.wg.Wait()
	close(wp.results)
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.numWorkers }

func (wp *WorkerPool) run(worker int) {
	defer wp.wg.Done()
	for task := range wp.tasks {
		task.fn(worker, task.lo, task.hi)
		wp.results <- rangeResult{id: task.id}
	}
}

// Map splits [0, n) into chunks, runs fn over them on the pool, and blocks
// until every chunk finishes. The chunk count never exceeds the task buffer,
// so submission cannot deadlock against result draining.
func (wp *WorkerPool) Map(n int, fn func(worker, lo, hi int)) {
	if n <= 0 {
		return
	}
	chunk := (n + wp.numWorkers*tasksPerWorker - 1) / (wp.numWorkers * tasksPerWorker)
	count := 0
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wp.tasks <- rangeTask{id: count, lo: lo, hi: hi, fn: fn}
		count++
	}
	for i := 0; i < count; i++ {
		<-wp.results
	}
}
