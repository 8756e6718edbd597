/**
 * @description
 * HTTP handlers for the chore marketplace endpoints: posting, claiming,
 * completion, approval (with payout), and rejection.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createChoreRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Payout      int64      `json:"payout"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

// CreateChoreHandler posts a new open chore to the family board.
func (h *LedgerHandlers) CreateChoreHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req createChoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	chore, err := h.service.CreateChore(r.Context(), user, req.Title, req.Description, req.Payout, req.DueDate)
	if err != nil {
		h.handleServiceError(w, "create_chore", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_chore outcome=created chore_id=%s payout=%d", chore.ID, chore.Payout)
	h.writeJSON(w, http.StatusCreated, chore)
}

// ClaimChoreHandler claims an open chore for the calling kid.
func (h *LedgerHandlers) ClaimChoreHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	choreID, err := uuid.Parse(chi.URLParam(r, "choreID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid chore id")
		return
	}

	chore, err := h.service.ClaimChore(r.Context(), user, choreID)
	if err != nil {
		h.handleServiceError(w, "claim_chore", err)
		return
	}
	h.writeJSON(w, http.StatusOK, chore)
}

// CompleteChoreHandler marks the caller's claimed chore as done, pending
// parental approval.
func (h *LedgerHandlers) CompleteChoreHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	choreID, err := uuid.Parse(chi.URLParam(r, "choreID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid chore id")
		return
	}

	chore, err := h.service.MarkChoreDone(r.Context(), user, choreID)
	if err != nil {
		h.handleServiceError(w, "complete_chore", err)
		return
	}
	h.writeJSON(w, http.StatusOK, chore)
}

// ApproveChoreHandler approves completed work and pays it out atomically.
func (h *LedgerHandlers) ApproveChoreHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	choreID, err := uuid.Parse(chi.URLParam(r, "choreID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid chore id")
		return
	}

	chore, err := h.service.ApproveChore(r.Context(), user, choreID)
	if err != nil {
		h.handleServiceError(w, "approve_chore", err)
		return
	}

	log.Printf("level=info component=api endpoint=approve_chore outcome=paid chore_id=%s payout=%d", chore.ID, chore.Payout)
	h.writeJSON(w, http.StatusOK, chore)
}

// RejectChoreHandler returns a pending chore to the open pool.
func (h *LedgerHandlers) RejectChoreHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	choreID, err := uuid.Parse(chi.URLParam(r, "choreID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid chore id")
		return
	}

	chore, err := h.service.RejectChore(r.Context(), user, choreID)
	if err != nil {
		h.handleServiceError(w, "reject_chore", err)
		return
	}
	h.writeJSON(w, http.StatusOK, chore)
}

// ListChoresHandler lists the family's chores, optionally filtered by
// status via the `status` query parameter.
func (h *LedgerHandlers) ListChoresHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	chores, err := h.service.ChoresForFamily(r.Context(), user, r.URL.Query().Get("status"))
	if err != nil {
		h.handleServiceError(w, "list_chores", err)
		return
	}
	h.writeJSON(w, http.StatusOK, chores)
}

// ListMyChoresHandler lists the chores the caller has claimed.
func (h *LedgerHandlers) ListMyChoresHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	chores, err := h.service.ChoresForAssignee(r.Context(), user.ID)
	if err != nil {
		h.handleServiceError(w, "list_my_chores", err)
		return
	}
	h.writeJSON(w, http.StatusOK, chores)
}
