package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cadenza-app/cadenza/internal/auth"
	"github.com/cadenza-app/cadenza/internal/social"
	"github.com/cadenza-app/cadenza/internal/store"
)

type SocialHandler struct {
	social *social.Service
	users  *store.UserStore
	logger *slog.Logger
}

func NewSocialHandler(ss *social.Service, users *store.UserStore, logger *slog.Logger) *SocialHandler {
	return &SocialHandler{social: ss, users: users, logger: logger}
}

// toggleResponse reports the state after the toggle, not the action taken.
type toggleResponse struct {
	Active bool `json:"active"`
}

func (h *SocialHandler) toggleEndpoint(w http.ResponseWriter, r *http.Request, toggle func(actor, target int64) (bool, error)) {
	targetID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	active, err := toggle(auth.UserID(r.Context()), targetID)
	if err != nil {
		switch {
		case errors.Is(err, social.ErrTargetNotFound):
			writeError(w, http.StatusNotFound, "target not found")
		case errors.Is(err, social.ErrSelfReference):
			writeError(w, http.StatusUnprocessableEntity, "cannot follow or like your own entity")
		case errors.Is(err, social.ErrConflict):
			writeError(w, http.StatusConflict, "try again")
		default:
			h.logger.Error("toggle edge", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Active: active})
}

func (h *SocialHandler) FollowUser(w http.ResponseWriter, r *http.Request) {
	h.toggleEndpoint(w, r, func(actor, target int64) (bool, error) {
		return h.social.ToggleFollowUser(r.Context(), actor, target)
	})
}

func (h *SocialHandler) LikeTrack(w http.ResponseWriter, r *http.Request) {
	h.toggleEndpoint(w, r, func(actor, target int64) (bool, error) {
		return h.social.ToggleLikeTrack(r.Context(), actor, target)
	})
}

func (h *SocialHandler) LikeAlbum(w http.ResponseWriter, r *http.Request) {
	h.toggleEndpoint(w, r, func(actor, target int64) (bool, error) {
		return h.social.ToggleLikeAlbum(r.Context(), actor, target)
	})
}

func (h *SocialHandler) LikePlaylist(w http.ResponseWriter, r *http.Request) {
	h.toggleEndpoint(w, r, func(actor, target int64) (bool, error) {
		return h.social.ToggleLikePlaylist(r.Context(), actor, target)
	})
}

func (h *SocialHandler) FollowPlaylist(w http.ResponseWriter, r *http.Request) {
	h.toggleEndpoint(w, r, func(actor, target int64) (bool, error) {
		return h.social.ToggleFollowPlaylist(r.Context(), actor, target)
	})
}

func (h *SocialHandler) FollowCounts(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	user, err := h.users.GetByID(userID)
	if err != nil {
		h.logger.Error("get user", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}

	followers, following, err := h.social.Counts(r.Context(), userID)
	if err != nil {
		h.logger.Error("follow counts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"followers": followers,
		"following": following,
	})
}

func (h *SocialHandler) LikeHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	events, err := h.social.LikeHistory(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		h.logger.Error("like history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, events)
}
