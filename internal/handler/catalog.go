package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cadenza-app/cadenza/internal/auth"
	"github.com/cadenza-app/cadenza/internal/blob"
	"github.com/cadenza-app/cadenza/internal/catalog"
	"github.com/cadenza-app/cadenza/internal/model"
	"github.com/cadenza-app/cadenza/internal/store"
)

// 50 MB cap on track uploads.
const maxUploadBytes = 50 << 20

type CatalogHandler struct {
	catalog *catalog.Service
	uploads *store.UploadStore
	blobs   blob.Store
	logger  *slog.Logger
}

func NewCatalogHandler(cs *catalog.Service, us *store.UploadStore, blobs blob.Store, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: cs, uploads: us, blobs: blobs, logger: logger}
}

type albumRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ReleasedOn  string `json:"released_on"`
}

func (h *CatalogHandler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req albumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	var releasedOn *time.Time
	if req.ReleasedOn != "" {
		t, err := time.Parse("2006-01-02", req.ReleasedOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "released_on must be YYYY-MM-DD")
			return
		}
		releasedOn = &t
	}

	album, err := h.catalog.CreateAlbum(r.Context(), auth.UserID(r.Context()), req.Title, req.Description, releasedOn)
	if err != nil {
		h.logger.Error("create album", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create album")
		return
	}
	writeJSON(w, http.StatusCreated, album)
}

func (h *CatalogHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	album, err := h.catalog.GetAlbum(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err, "get album")
		return
	}
	writeJSON(w, http.StatusOK, album)
}

func (h *CatalogHandler) AlbumTracks(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	tracks, err := h.catalog.TracksByAlbum(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err, "list album tracks")
		return
	}
	if tracks == nil {
		tracks = []*model.Track{}
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (h *CatalogHandler) MyAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := h.catalog.AlbumsByArtist(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("list albums", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list albums")
		return
	}
	if albums == nil {
		albums = []*model.Album{}
	}
	writeJSON(w, http.StatusOK, albums)
}

type trackRequest struct {
	AlbumID      int64   `json:"album_id"`
	Title        string  `json:"title"`
	DurationSecs int     `json:"duration_secs"`
	Genre        *string `json:"genre"`
	Explicit     bool    `json:"explicit"`
}

func (h *CatalogHandler) CreateTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.DurationSecs <= 0 {
		writeError(w, http.StatusBadRequest, "duration_secs must be positive")
		return
	}

	track, err := h.catalog.CreateTrack(r.Context(), auth.UserID(r.Context()), req.AlbumID, req.Title, req.DurationSecs, req.Genre, req.Explicit)
	if err != nil {
		h.writeCatalogError(w, err, "create track")
		return
	}
	writeJSON(w, http.StatusCreated, track)
}

func (h *CatalogHandler) GetTrack(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	track, err := h.catalog.GetTrack(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err, "get track")
		return
	}
	writeJSON(w, http.StatusOK, track)
}

// UploadTrackFile accepts multipart form data with a "file" field, stores
// the audio in blob storage, and points the track at the stored object.
func (h *CatalogHandler) UploadTrackFile(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	ext := filepath.Ext(header.Filename)
	key := fmt.Sprintf("tracks/%d/%s%s", trackID, uuid.NewString(), ext)

	if err := h.blobs.Put(r.Context(), key, file, header.Size); err != nil {
		h.logger.Error("store track file", "error", err, "track_id", trackID)
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	if err := h.catalog.SetTrackFile(r.Context(), auth.UserID(r.Context()), trackID, key); err != nil {
		// The track row did not change; remove the orphaned object.
		if delErr := h.blobs.Delete(r.Context(), key); delErr != nil {
			h.logger.Error("remove orphaned upload", "error", delErr, "key", key)
		}
		h.writeCatalogError(w, err, "set track file")
		return
	}

	userID := auth.UserID(r.Context())
	upload, err := h.uploads.Create(userID, &trackID, model.UploadKindAudio, key, header.Filename, header.Size)
	if err != nil {
		h.logger.Error("record upload", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record upload")
		return
	}
	writeJSON(w, http.StatusCreated, upload)
}

func (h *CatalogHandler) RecordListen(w http.ResponseWriter, r *http.Request) {
	trackID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	counted, err := h.catalog.RecordListen(r.Context(), auth.UserID(r.Context()), trackID)
	if err != nil {
		h.writeCatalogError(w, err, "record listen")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"counted": counted})
}

func (h *CatalogHandler) ListenHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	events, err := h.catalog.ListenHistory(r.Context(), auth.UserID(r.Context()), limit, offset)
	if err != nil {
		h.logger.Error("listen history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []*model.ListenEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *CatalogHandler) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.catalog.DeleteTrack(r.Context(), auth.UserID(r.Context()), id); err != nil {
		h.writeCatalogError(w, err, "delete track")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *CatalogHandler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.catalog.DeleteAlbum(r.Context(), auth.UserID(r.Context()), id); err != nil {
		h.writeCatalogError(w, err, "delete album")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *CatalogHandler) writeCatalogError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, catalog.ErrAlbumNotFound):
		writeError(w, http.StatusNotFound, "album not found")
	case errors.Is(err, catalog.ErrTrackNotFound):
		writeError(w, http.StatusNotFound, "track not found")
	case errors.Is(err, catalog.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not allowed")
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
