package httpd

import (
	"net/http"
	"time"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/google/uuid"
)

// Check scores two documents. ?format=report returns the plain-text report,
// ?format=export the flat JSON export.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req models.CheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.ledgerService.Check(r.Context(), req)
	if err != nil {
		h.handleError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeSuccess(w, result)
	case "report":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := h.exportService.WriteDetailedReport(w, result); err != nil {
			h.logger.Error().Err(err).Msg("Failed to write report")
		}
	case "export":
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := h.exportService.WriteCheckJSON(w, result); err != nil {
			h.logger.Error().Err(err).Msg("Failed to write export")
		}
	default:
		writeError(w, http.StatusBadRequest, "Unsupported format. Use 'json', 'report' or 'export'")
	}
}

func (h *Handler) CheckPairwise(w http.ResponseWriter, r *http.Request) {
	var req models.PairwiseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.ledgerService.CheckPairwise(r.Context(), req)
	if err != nil {
		h.handleError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeSuccess(w, result)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename=\"pairwise.csv\"")
		w.WriteHeader(http.StatusOK)
		if err := h.exportService.WritePairwiseCSV(w, result); err != nil {
			h.logger.Error().Err(err).Msg("Failed to write csv")
		}
	default:
		writeError(w, http.StatusBadRequest, "Unsupported format. Use 'json' or 'csv'")
	}
}

func (h *Handler) CheckAsync(w http.ResponseWriter, r *http.Request) {
	if h.checkPublisher == nil {
		writeError(w, http.StatusServiceUnavailable, "Asynchronous checks are not configured")
		return
	}

	var req models.CheckRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	event := models.CheckRequestedEvent{
		CheckID:     uuid.New().String(),
		Request:     req,
		RequestedAt: time.Now().UTC(),
	}

	if err := h.checkPublisher.PublishCheckRequested(r.Context(), event); err != nil {
		h.logger.Error().Err(err).Msg("Failed to queue check")
		writeError(w, http.StatusBadGateway, "Failed to queue check")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"data": map[string]any{
			"check_id": event.CheckID,
			"message":  "Check queued for processing",
		},
	})
}

func (h *Handler) ListAlgorithms(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.ledgerService.CheckerInfo())
}
