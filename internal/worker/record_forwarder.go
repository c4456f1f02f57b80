package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type RecordPublisher interface {
	PublishRecordRequested(ctx context.Context, event models.RecordRequestedEvent) error
}

type recordForwarder struct {
	checker   Checker
	publisher RecordPublisher
	now       func() time.Time
	logger    zerolog.Logger
}

// NewRecordForwarder wraps checker for processes that do not own the ledger.
// Checks run locally with recording turned off; a check that asked to be
// recorded is published as a record request for the owner to append.
func NewRecordForwarder(checker Checker, publisher RecordPublisher, logger zerolog.Logger) Checker {
	return &recordForwarder{
		checker:   checker,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

func (f *recordForwarder) Check(ctx context.Context, req models.CheckRequest) (*service.CheckResult, error) {
	record := req.Record
	req.Record = false

	result, err := f.checker.Check(ctx, req)
	if err != nil || !record {
		return result, err
	}

	event := models.RecordRequestedEvent{
		EventID:     uuid.New().String(),
		CheckID:     result.CheckID,
		Document:    result.ScoredDocument(),
		RequestedAt: f.now().UTC(),
	}
	if err := f.publisher.PublishRecordRequested(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to forward record request: %w", err)
	}

	f.logger.Info().
		Str("check_id", result.CheckID).
		Str("event_id", event.EventID).
		Float64("score", event.Document.PlagiarismScore).
		Msg("Record request forwarded to ledger owner")

	return result, nil
}
