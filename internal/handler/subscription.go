package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cadenza-app/cadenza/internal/auth"
	"github.com/cadenza-app/cadenza/internal/payment"
	"github.com/cadenza-app/cadenza/internal/store"
	"github.com/cadenza-app/cadenza/internal/subscription"
)

type SubscriptionHandler struct {
	subs   *subscription.Service
	plans  *store.PlanStore
	logger *slog.Logger
}

func NewSubscriptionHandler(ss *subscription.Service, ps *store.PlanStore, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: ss, plans: ps, logger: logger}
}

func (h *SubscriptionHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List()
	if err != nil {
		h.logger.Error("list plans", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list plans")
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

type activateRequest struct {
	PlanID int64 `json:"plan_id"`
}

func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	sub, err := h.subs.Activate(r.Context(), auth.UserID(r.Context()), req.PlanID)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrPlanNotFound):
			writeError(w, http.StatusNotFound, "plan not found")
		case errors.Is(err, subscription.ErrAlreadySubscribed):
			writeError(w, http.StatusConflict, "already subscribed")
		case errors.Is(err, payment.ErrChargeDeclined):
			writeError(w, http.StatusPaymentRequired, "payment declined")
		default:
			h.logger.Error("activate subscription", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subs.Cancel(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		if errors.Is(err, subscription.ErrNoActiveSubscription) {
			writeError(w, http.StatusNotFound, "no active subscription")
			return
		}
		h.logger.Error("cancel subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subs.Reactivate(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrNoActiveSubscription):
			writeError(w, http.StatusNotFound, "no subscription to reactivate")
		case errors.Is(err, subscription.ErrGracePeriodExpired):
			writeError(w, http.StatusUnprocessableEntity, "subscription can no longer be reactivated")
		case errors.Is(err, subscription.ErrAlreadySubscribed):
			writeError(w, http.StatusConflict, "already subscribed")
		default:
			h.logger.Error("reactivate subscription", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	sub, err := h.subs.Current(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("current subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sub == nil {
		writeError(w, http.StatusNotFound, "no subscription")
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *SubscriptionHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)

	txns, err := h.subs.Transactions(r.Context(), auth.UserID(r.Context()), limit)
	if err != nil {
		h.logger.Error("list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, txns)
}
