package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service"
	"github.com/RubachokBoss/plagiarism-ledger/internal/worker/queue"
	"github.com/rs/zerolog"
)

// Checker is the part of service.LedgerService the worker drives.
type Checker interface {
	Check(ctx context.Context, req models.CheckRequest) (*service.CheckResult, error)
}

type CheckWorker interface {
	Start(ctx context.Context) error
	Stop() error
	Done() <-chan struct{}
	ProcessCheck(ctx context.Context, event models.CheckRequestedEvent) error
	GetStats() WorkerStats
}

type WorkerStats struct {
	BusyWorkers    int       `json:"busy_workers"`
	ProcessedToday int       `json:"processed_today"`
	TotalProcessed int       `json:"total_processed"`
	Recorded       int       `json:"recorded"`
	FailedJobs     int       `json:"failed_jobs"`
	Rejected       int       `json:"rejected"`
	QueueLength    int       `json:"queue_length"`
	Pool           PoolStats `json:"pool"`
	// Forwarded counts record requests received from standalone workers.
	Forwarded RecordStats `json:"forwarded"`
}

type checkWorker struct {
	workerPool    *WorkerPool
	queueConsumer queue.RabbitMQConsumer
	checker       Checker
	logger        zerolog.Logger
	stats         WorkerStats
	statsMutex    sync.RWMutex
	startTime     time.Time
	done          chan struct{}
}

func NewCheckWorker(
	workerPool *WorkerPool,
	queueConsumer queue.RabbitMQConsumer,
	checker Checker,
	logger zerolog.Logger,
) CheckWorker {
	return &checkWorker{
		workerPool:    workerPool,
		queueConsumer: queueConsumer,
		checker:       checker,
		logger:        logger,
		startTime:     time.Now(),
		done:          make(chan struct{}),
	}
}

func (w *checkWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting check worker...")

	if err := w.workerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	msgs, err := w.queueConsumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go w.processMessages(ctx, msgs)

	w.logger.Info().Msg("Check worker started successfully")
	return nil
}

func (w *checkWorker) Stop() error {
	w.logger.Info().Msg("Stopping check worker...")

	if err := w.queueConsumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	if err := w.workerPool.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	stats := w.snapshot()
	w.logger.Info().
		Int("total_processed", stats.TotalProcessed).
		Int("failed_jobs", stats.FailedJobs).
		Dur("uptime", time.Since(w.startTime)).
		Msg("Check worker stopped")

	return nil
}

// Done is closed once the message loop has exited.
func (w *checkWorker) Done() <-chan struct{} {
	return w.done
}

func (w *checkWorker) processMessages(ctx context.Context, msgs <-chan queue.Message) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}

			err := w.workerPool.Submit(func() {
				w.handle(ctx, msg)
			})
			if err != nil {
				w.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to schedule message")
				if nackErr := msg.Nack(false, true); nackErr != nil {
					w.logger.Error().Err(nackErr).Msg("Failed to nack message")
				}
			}
		}
	}
}

func (w *checkWorker) handle(ctx context.Context, msg queue.Message) {
	err := w.processMessage(ctx, msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}

		w.statsMutex.Lock()
		w.stats.TotalProcessed++
		if time.Since(msg.Timestamp).Hours() < 24 {
			w.stats.ProcessedToday++
		}
		w.statsMutex.Unlock()
		return
	}

	w.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Failed to process message")

	if isPermanentError(err) {
		w.statsMutex.Lock()
		w.stats.Rejected++
		w.statsMutex.Unlock()

		if ackErr := msg.Ack(false); ackErr != nil {
			w.logger.Error().Err(ackErr).Msg("Failed to ack message")
		}
		return
	}

	w.statsMutex.Lock()
	w.stats.FailedJobs++
	w.statsMutex.Unlock()

	if nackErr := msg.Nack(false, true); nackErr != nil {
		w.logger.Error().Err(nackErr).Msg("Failed to nack message")
	}
}

func (w *checkWorker) processMessage(ctx context.Context, msg queue.Message) error {
	var event models.CheckRequestedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return permanent(fmt.Errorf("failed to unmarshal event: %w", err))
	}

	if strings.TrimSpace(event.CheckID) == "" {
		return permanent(errors.New("empty check_id"))
	}

	return w.ProcessCheck(ctx, event)
}

func (w *checkWorker) ProcessCheck(ctx context.Context, event models.CheckRequestedEvent) error {
	startTime := time.Now()

	w.logger.Info().
		Str("check_id", event.CheckID).
		Str("title", event.Request.DocumentA.Title).
		Str("algorithm", event.Request.Algorithm).
		Bool("record", event.Request.Record).
		Msg("Processing check request")

	result, err := w.checker.Check(ctx, event.Request)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) || errors.Is(err, service.ErrSourceNotFound) {
			return permanent(err)
		}
		return fmt.Errorf("failed to check documents: %w", err)
	}

	if result.Entry != nil {
		w.statsMutex.Lock()
		w.stats.Recorded++
		w.statsMutex.Unlock()
	}

	w.logger.Info().
		Str("check_id", event.CheckID).
		Float64("score", result.Result.Score).
		Str("verdict", string(result.Result.Verdict)).
		Dur("processing_time", time.Since(startTime)).
		Msg("Check request completed")

	return nil
}

func (w *checkWorker) GetStats() WorkerStats {
	stats := w.snapshot()

	queueLength, err := w.queueConsumer.GetQueueLength()
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to get queue length")
	} else {
		stats.QueueLength = queueLength
	}

	stats.Pool = w.workerPool.GetStats()
	stats.BusyWorkers = stats.Pool.BusyWorkers
	return stats
}

func (w *checkWorker) snapshot() WorkerStats {
	w.statsMutex.RLock()
	defer w.statsMutex.RUnlock()
	return w.stats
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return permanentError{err: err}
}

func isPermanentError(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
