/**
 * @description
 * HTTP handlers for the trust score endpoints: current score, history,
 * tier perks, saving streak, the event log, and parent endorsements.
 */

package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TrustScoreHandler returns the caller's most recent score snapshot.
func (h *LedgerHandlers) TrustScoreHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	score, err := h.service.CurrentScore(r.Context(), user.ID)
	if err != nil {
		h.handleServiceError(w, "trust_score", err)
		return
	}
	h.writeJSON(w, http.StatusOK, score)
}

// TrustHistoryHandler returns the caller's score snapshots, newest first.
func (h *LedgerHandlers) TrustHistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	history, err := h.service.ScoreHistory(r.Context(), user.ID, parseIntQuery(r, "limit", 30))
	if err != nil {
		h.handleServiceError(w, "trust_history", err)
		return
	}
	h.writeJSON(w, http.StatusOK, history)
}

// TrustTierHandler returns the caller's tier bracket and perks.
func (h *LedgerHandlers) TrustTierHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	perks, err := h.service.TierInfo(r.Context(), user.ID)
	if err != nil {
		h.handleServiceError(w, "trust_tier", err)
		return
	}
	h.writeJSON(w, http.StatusOK, perks)
}

// SavingStreakHandler returns the caller's current consecutive-saving
// streak length.
func (h *LedgerHandlers) SavingStreakHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	streak, err := h.service.SavingStreak(r.Context(), user.ID)
	if err != nil {
		h.handleServiceError(w, "saving_streak", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"streak": streak})
}

// TrustEventsHandler returns the caller's behavioral event log.
func (h *LedgerHandlers) TrustEventsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	events, err := h.service.TrustEvents(r.Context(), user.ID, r.URL.Query().Get("type"), parseIntQuery(r, "limit", 50))
	if err != nil {
		h.handleServiceError(w, "trust_events", err)
		return
	}
	h.writeJSON(w, http.StatusOK, events)
}

type endorseRequest struct {
	PointDelta int `json:"point_delta"`
}

// EndorseChildHandler records a parent endorsement for a kid in the same
// family.
func (h *LedgerHandlers) EndorseChildHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	kidID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}

	var req endorseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	score, err := h.service.EndorseChild(r.Context(), user, kidID, req.PointDelta)
	if err != nil {
		h.handleServiceError(w, "endorse_child", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, score)
}
