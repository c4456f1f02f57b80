package httpd

import (
	"net/http"
	"time"
)

const serviceVersion = "1.0.0"

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.ledgerService.Verify()

	status := "healthy"
	if !report.Valid {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"service":   "plagiarism-ledger",
		"timestamp": time.Now().UTC(),
		"version":   serviceVersion,
		"ledger": map[string]any{
			"length": report.Length,
			"valid":  report.Valid,
		},
	})
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"ledger": h.ledgerService.Stats(r.Context()),
	}
	if h.workerStats != nil {
		stats["worker"] = h.workerStats.GetStats()
	}

	writeSuccess(w, stats)
}
