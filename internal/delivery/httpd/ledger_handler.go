package httpd

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/RubachokBoss/plagiarism-ledger/internal/models"
	"github.com/RubachokBoss/plagiarism-ledger/internal/service"
	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	entries := h.ledgerService.Entries()
	total := len(entries)

	offset := getIntQueryParam(r, "offset", 0)
	limit := getIntQueryParam(r, "limit", total)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	if limit < 0 || limit > total-offset {
		limit = total - offset
	}

	writeSuccess(w, map[string]any{
		"total":   total,
		"offset":  offset,
		"entries": entries[offset : offset+limit],
	})
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Entry index must be an integer")
		return
	}

	entry, err := h.ledgerService.Entry(index)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeSuccess(w, entry)
}

func (h *Handler) AppendEntry(w http.ResponseWriter, r *http.Request) {
	var req models.AppendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	doc := req.Document.WithScore(req.Document.PlagiarismScore).WithSource(req.Document.SourceURL)
	entry := h.ledgerService.Record(r.Context(), doc)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    entry,
	})
}

func (h *Handler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.ledgerService.Verify())
}

func (h *Handler) ExportLedger(w http.ResponseWriter, r *http.Request) {
	entries := h.ledgerService.Entries()
	report := service.VerifyEntries(entries)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=\"ledger.json\"")
	w.WriteHeader(http.StatusOK)

	if err := h.exportService.WriteChainJSON(w, entries, report); err != nil {
		h.logger.Error().Err(err).Msg("Failed to export ledger")
	}
}

func (h *Handler) SaveLedger(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledgerService.Save(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeSuccess(w, result)
}

func (h *Handler) LoadLedger(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledgerService.Load(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeSuccess(w, result)
}

func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.ledgerService.ListSnapshots(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeSuccess(w, snapshots)
}

func (h *Handler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	info, err := h.ledgerService.Backup(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data":    info,
	})
}

// RestoreSnapshot installs the named snapshot, or the latest one when the
// body is empty or names no key.
func (h *Handler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	var req models.RestoreRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.ledgerService.Restore(r.Context(), req.Key)
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeSuccess(w, result)
}
