package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cadenza-app/cadenza/internal/auth"
	"github.com/cadenza-app/cadenza/internal/playlist"
)

type PlaylistHandler struct {
	playlists *playlist.Service
	logger    *slog.Logger
}

func NewPlaylistHandler(ps *playlist.Service, logger *slog.Logger) *PlaylistHandler {
	return &PlaylistHandler{playlists: ps, logger: logger}
}

type playlistRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Public        bool   `json:"public"`
	Collaborative bool   `json:"collaborative"`
}

func (h *PlaylistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p, err := h.playlists.Create(r.Context(), auth.UserID(r.Context()), req.Name, req.Description, req.Public, req.Collaborative)
	if err != nil {
		h.logger.Error("create playlist", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create playlist")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	p, err := h.playlists.Get(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		h.writePlaylistError(w, err, "get playlist")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PlaylistHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	p, err := h.playlists.Update(r.Context(), auth.UserID(r.Context()), id, req.Name, req.Description, req.Public, req.Collaborative)
	if err != nil {
		h.writePlaylistError(w, err, "update playlist")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.playlists.Delete(r.Context(), auth.UserID(r.Context()), id); err != nil {
		h.writePlaylistError(w, err, "delete playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *PlaylistHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	lists, err := h.playlists.ForOwner(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list playlists", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list playlists")
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *PlaylistHandler) Entries(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	entries, err := h.playlists.Entries(r.Context(), auth.UserID(r.Context()), id)
	if err != nil {
		h.writePlaylistError(w, err, "list entries")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *PlaylistHandler) AppendTrack(w http.ResponseWriter, r *http.Request) {
	playlistID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	trackID, err := parsePathInt(r, "track_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track_id")
		return
	}

	if err := h.playlists.Append(r.Context(), auth.UserID(r.Context()), playlistID, trackID); err != nil {
		h.writePlaylistError(w, err, "append track")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (h *PlaylistHandler) RemoveTrack(w http.ResponseWriter, r *http.Request) {
	playlistID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	trackID, err := parsePathInt(r, "track_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid track_id")
		return
	}

	if err := h.playlists.Remove(r.Context(), auth.UserID(r.Context()), playlistID, trackID); err != nil {
		h.writePlaylistError(w, err, "remove track")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type reorderRequest struct {
	TrackIDs []int64 `json:"track_ids"`
}

func (h *PlaylistHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	playlistID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req reorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.playlists.Reorder(r.Context(), auth.UserID(r.Context()), playlistID, req.TrackIDs); err != nil {
		h.writePlaylistError(w, err, "reorder playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

func (h *PlaylistHandler) writePlaylistError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, playlist.ErrNotFound):
		writeError(w, http.StatusNotFound, "playlist not found")
	case errors.Is(err, playlist.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "track not found")
	case errors.Is(err, playlist.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "track is not in the playlist")
	case errors.Is(err, playlist.ErrDuplicateEntry):
		writeError(w, http.StatusConflict, "track is already in the playlist")
	case errors.Is(err, playlist.ErrIncompleteOrdering):
		writeError(w, http.StatusUnprocessableEntity, "ordering must list every track exactly once")
	case errors.Is(err, playlist.ErrUnauthorized), errors.Is(err, playlist.ErrForbidden):
		writeError(w, http.StatusForbidden, "not allowed")
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
