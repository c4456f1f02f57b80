package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrPoolStopped = errors.New("worker pool is not running")
	ErrPoolFull    = errors.New("worker pool task queue is full")
)

type Task func()

type PoolStats struct {
	MaxWorkers  int `json:"max_workers"`
	BusyWorkers int `json:"busy_workers"`
	QueueLength int `json:"queue_length"`
	QueueSize   int `json:"queue_size"`
}

// WorkerPool runs submitted tasks on a fixed number of goroutines. A task
// that panics is recovered and logged; the worker keeps running.
type WorkerPool struct {
	tasks         chan Task
	wg            sync.WaitGroup
	busyWorkers   atomic.Int32
	maxWorkers    int
	submitTimeout time.Duration
	logger        zerolog.Logger
	mu            sync.RWMutex
	running       bool
	stopped       bool
}

func NewWorkerPool(maxWorkers int, logger zerolog.Logger) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		tasks:         make(chan Task, maxWorkers*10),
		maxWorkers:    maxWorkers,
		submitTimeout: time.Second,
		logger:        logger,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) error {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.stopped {
		return ErrPoolStopped
	}
	if wp.running {
		return nil
	}

	wp.logger.Info().Int("max_workers", wp.maxWorkers).Msg("Starting worker pool")

	for i := 0; i < wp.maxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
	wp.running = true

	wp.logger.Info().Int("workers_started", wp.maxWorkers).Msg("Worker pool started")
	return nil
}

// Stop drains queued tasks and waits for the workers to finish. It is safe
// to call more than once.
func (wp *WorkerPool) Stop() error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	wasRunning := wp.running
	wp.running = false
	close(wp.tasks)
	wp.mu.Unlock()

	if wasRunning {
		wp.logger.Info().Msg("Stopping worker pool")
		wp.wg.Wait()
		wp.logger.Info().Msg("Worker pool stopped")
	}
	return nil
}

// Submit queues a task. When the queue is full it waits up to the submit
// timeout before giving up with ErrPoolFull.
func (wp *WorkerPool) Submit(task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running {
		return ErrPoolStopped
	}

	select {
	case wp.tasks <- task:
		return nil
	default:
	}

	wp.logger.Warn().Msg("Worker pool task queue is full")

	timer := time.NewTimer(wp.submitTimeout)
	defer timer.Stop()

	select {
	case wp.tasks <- task:
		return nil
	case <-timer.C:
		wp.logger.Error().Msg("Failed to submit task to worker pool (timeout)")
		return ErrPoolFull
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug().Int("worker_id", id).Msg("Worker started")

	for task := range wp.tasks {
		wp.run(id, task)
	}

	wp.logger.Debug().Int("worker_id", id).Msg("Worker stopped")
}

func (wp *WorkerPool) run(id int, task Task) {
	wp.busyWorkers.Add(1)

	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error().
				Int("worker_id", id).
				Interface("panic", r).
				Msg("Worker recovered from panic")
		}

		wp.busyWorkers.Add(-1)
	}()

	task()
}

func (wp *WorkerPool) GetBusyWorkers() int {
	return int(wp.busyWorkers.Load())
}

func (wp *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		MaxWorkers:  wp.maxWorkers,
		BusyWorkers: wp.GetBusyWorkers(),
		QueueLength: len(wp.tasks),
		QueueSize:   cap(wp.tasks),
	}
}
