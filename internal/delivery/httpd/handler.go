package httpd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service/integration"
	"github.com/RubachokBoss/plagiarism-ledger/internal/worker"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 8 << 20

// CheckPublisher queues a check for the background worker.
type CheckPublisher interface {
	PublishCheckRequested(ctx context.Context, event models.CheckRequestedEvent) error
}

type StatsProvider interface {
	GetStats() worker.WorkerStats
}

type Handler struct {
	ledgerService  service.LedgerService
	exportService  service.ExportService
	checkPublisher CheckPublisher
	workerStats    StatsProvider
	logger         zerolog.Logger
}

// NewHandler wires the HTTP layer. checkPublisher and workerStats may be nil
// when messaging is disabled.
func NewHandler(
	ledgerService service.LedgerService,
	exportService service.ExportService,
	checkPublisher CheckPublisher,
	workerStats StatsProvider,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		ledgerService:  ledgerService,
		exportService:  exportService,
		checkPublisher: checkPublisher,
		workerStats:    workerStats,
		logger:         logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/stats", h.GetStats)

	router.Route("/api/v1", func(api chi.Router) {
		api.Get("/algorithms", h.ListAlgorithms)

		api.Route("/check", func(r chi.Router) {
			r.Post("/", h.Check)
			r.Post("/pairwise", h.CheckPairwise)
			r.Post("/async", h.CheckAsync)
		})

		api.Route("/ledger", func(r chi.Router) {
			r.Get("/", h.ListEntries)
			r.Get("/verify", h.VerifyLedger)
			r.Get("/export", h.ExportLedger)
			r.Post("/entries", h.AppendEntry)
			r.Post("/save", h.SaveLedger)
			r.Post("/load", h.LoadLedger)
			r.Get("/snapshots", h.ListSnapshots)
			r.Post("/snapshots", h.CreateSnapshot)
			r.Post("/snapshots/restore", h.RestoreSnapshot)
			r.Get("/{index}", h.GetEntry)
		})
	})
}

func getIntQueryParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEntryNotFound),
		errors.Is(err, service.ErrLedgerNotFound),
		errors.Is(err, service.ErrSnapshotNotFound),
		errors.Is(err, service.ErrSourceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidChain):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrSnapshotsDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, integration.ErrSourceUnreachable):
		h.logger.Error().Err(err).Msg("Source discovery error")
		writeError(w, http.StatusBadGateway, "Candidate sources unavailable")
	default:
		h.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
