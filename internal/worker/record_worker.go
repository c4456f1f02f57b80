package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/RubachokBoss/plagiarism-ledger/internal/ledger"
	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/worker/queue"
	"github.com/rs/zerolog"
)

// Recorder is the part of service.LedgerService that appends.
type Recorder interface {
	Record(ctx context.Context, doc models.Document) ledger.Entry
}

// RecordWorker runs in the process that owns the ledger and appends the
// record requests published by standalone workers, one at a time and in
// queue order.
type RecordWorker interface {
	Start(ctx context.Context) error
	Stop() error
	Done() <-chan struct{}
	GetStats() RecordStats
}

type RecordStats struct {
	Recorded int `json:"recorded"`
	Rejected int `json:"rejected"`
}

type recordWorker struct {
	queueConsumer queue.RabbitMQConsumer
	recorder      Recorder
	logger        zerolog.Logger

	mu    sync.Mutex
	stats RecordStats
	done  chan struct{}
}

func NewRecordWorker(queueConsumer queue.RabbitMQConsumer, recorder Recorder, logger zerolog.Logger) RecordWorker {
	return &recordWorker{
		queueConsumer: queueConsumer,
		recorder:      recorder,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

func (w *recordWorker) Start(ctx context.Context) error {
	msgs, err := w.queueConsumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming record requests: %w", err)
	}

	go w.run(ctx, msgs)

	w.logger.Info().Msg("Record worker started")
	return nil
}

func (w *recordWorker) Stop() error {
	if err := w.queueConsumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close record consumer")
	}

	stats := w.GetStats()
	w.logger.Info().
		Int("recorded", stats.Recorded).
		Int("rejected", stats.Rejected).
		Msg("Record worker stopped")
	return nil
}

func (w *recordWorker) Done() <-chan struct{} {
	return w.done
}

func (w *recordWorker) GetStats() RecordStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *recordWorker) run(ctx context.Context, msgs <-chan queue.Message) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			w.handle(ctx, msg)
		}
	}
}

// handle acks every message it has looked at. Record cannot fail, and a
// malformed request will not become valid on redelivery.
func (w *recordWorker) handle(ctx context.Context, msg queue.Message) {
	entry, err := w.record(ctx, msg)

	w.mu.Lock()
	if err != nil {
		w.stats.Rejected++
	} else {
		w.stats.Recorded++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error().Err(err).Str("message_id", msg.MessageID).Msg("Rejected record request")
	} else {
		w.logger.Debug().Str("message_id", msg.MessageID).Int("index", entry.Index).Msg("Record request appended")
	}

	if ackErr := msg.Ack(false); ackErr != nil {
		w.logger.Error().Err(ackErr).Msg("Failed to ack message")
	}
}

func (w *recordWorker) record(ctx context.Context, msg queue.Message) (ledger.Entry, error) {
	var event models.RecordRequestedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if strings.TrimSpace(event.EventID) == "" {
		return ledger.Entry{}, errors.New("empty event_id")
	}

	doc := event.Document.WithScore(event.Document.PlagiarismScore)
	return w.recorder.Record(ctx, doc), nil
}
