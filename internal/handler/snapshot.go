package handler

import (
	"log/slog"
	"net/http"

	"github.com/cadenza-app/cadenza/internal/archive"
	"github.com/cadenza-app/cadenza/internal/store"
)

// SnapshotHandler exposes catalog snapshots to admins.
type SnapshotHandler struct {
	manager *archive.Manager
	snaps   *store.SnapshotStore
	logger  *slog.Logger
}

func NewSnapshotHandler(m *archive.Manager, ss *store.SnapshotStore, logger *slog.Logger) *SnapshotHandler {
	return &SnapshotHandler{manager: m, snaps: ss, logger: logger}
}

func (h *SnapshotHandler) Run(w http.ResponseWriter, r *http.Request) {
	if !h.manager.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "snapshots not configured")
		return
	}

	id, err := h.manager.RunNow(r.Context())
	if err != nil {
		h.logger.Error("run snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}

	snap, err := h.snaps.GetByID(id)
	if err != nil {
		h.logger.Error("get snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *SnapshotHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	snaps, err := h.snaps.List(limit)
	if err != nil {
		h.logger.Error("list snapshots", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}
