/**
 * @description
 * HTTP handlers for the savings goal endpoints.
 */

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createGoalRequest struct {
	AccountID    uuid.UUID  `json:"account_id"`
	Name         string     `json:"name"`
	TargetAmount int64      `json:"target_amount"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// CreateGoalHandler creates an active savings goal on one of the caller's
// accounts.
func (h *LedgerHandlers) CreateGoalHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	goal, err := h.service.CreateGoal(r.Context(), user, req.AccountID, req.Name, req.TargetAmount, req.Deadline)
	if err != nil {
		h.handleServiceError(w, "create_goal", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, goal)
}

type updateGoalProgressRequest struct {
	CurrentAmount int64 `json:"current_amount"`
}

// UpdateGoalProgressHandler sets a goal's current amount. Reaching the
// target completes the goal.
func (h *LedgerHandlers) UpdateGoalProgressHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	goalID, err := uuid.Parse(chi.URLParam(r, "goalID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid goal id")
		return
	}

	var req updateGoalProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	goal, err := h.service.UpdateGoalProgress(r.Context(), user, goalID, req.CurrentAmount)
	if err != nil {
		h.handleServiceError(w, "update_goal_progress", err)
		return
	}
	h.writeJSON(w, http.StatusOK, goal)
}

// CancelGoalHandler flips an active goal to cancelled.
func (h *LedgerHandlers) CancelGoalHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	goalID, err := uuid.Parse(chi.URLParam(r, "goalID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid goal id")
		return
	}

	goal, err := h.service.CancelGoal(r.Context(), user, goalID)
	if err != nil {
		h.handleServiceError(w, "cancel_goal", err)
		return
	}
	h.writeJSON(w, http.StatusOK, goal)
}

// ListGoalsHandler returns the caller's savings goals.
func (h *LedgerHandlers) ListGoalsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	goals, err := h.service.GoalsForUser(r.Context(), user.ID)
	if err != nil {
		h.handleServiceError(w, "list_goals", err)
		return
	}
	h.writeJSON(w, http.StatusOK, goals)
}
