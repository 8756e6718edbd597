/**
 * @description
 * HTTP handlers for the loan endpoints: creation, approval, rejection,
 * repayment, and schedule retrieval.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type createLoanRequest struct {
	BorrowerID uuid.UUID `json:"borrower_id"`
	Principal  int64     `json:"principal"`
	AnnualRate float64   `json:"annual_rate"`
	TermWeeks  int       `json:"term_weeks"`
}

// CreateLoanHandler stores a pending loan offer from the calling parent.
func (h *LedgerHandlers) CreateLoanHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req createLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	loan, err := h.service.CreateLoan(r.Context(), user, req.BorrowerID, req.Principal, req.AnnualRate, req.TermWeeks)
	if err != nil {
		h.handleServiceError(w, "create_loan", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_loan outcome=created loan_id=%s principal=%d term_weeks=%d", loan.ID, loan.Principal, loan.TermWeeks)
	h.writeJSON(w, http.StatusCreated, loan)
}

// ApproveLoanHandler disburses principal, persists the schedule, and flips
// the loan active, all as one atomic approval.
func (h *LedgerHandlers) ApproveLoanHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid loan id")
		return
	}

	loan, err := h.service.ApproveLoan(r.Context(), user, loanID)
	if err != nil {
		h.handleServiceError(w, "approve_loan", err)
		return
	}

	log.Printf("level=info component=api endpoint=approve_loan outcome=approved loan_id=%s", loan.ID)
	h.writeJSON(w, http.StatusOK, loan)
}

// RejectLoanHandler flips a pending loan to rejected.
func (h *LedgerHandlers) RejectLoanHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid loan id")
		return
	}

	loan, err := h.service.RejectLoan(r.Context(), user, loanID)
	if err != nil {
		h.handleServiceError(w, "reject_loan", err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

// RecordLoanPaymentHandler applies the next scheduled payment.
func (h *LedgerHandlers) RecordLoanPaymentHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid loan id")
		return
	}

	result, err := h.service.RecordLoanPayment(r.Context(), user, loanID)
	if err != nil {
		h.handleServiceError(w, "record_loan_payment", err)
		return
	}

	log.Printf("level=info component=api endpoint=record_loan_payment outcome=applied loan_id=%s entry_id=%s remaining=%d", loanID, result.Entry.ID, result.Loan.RemainingBalance)
	h.writeJSON(w, http.StatusOK, result.Loan)
}

// GetLoanHandler returns one loan visible to the caller.
func (h *LedgerHandlers) GetLoanHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid loan id")
		return
	}

	loan, err := h.service.LoanByID(r.Context(), user, loanID)
	if err != nil {
		h.handleServiceError(w, "get_loan", err)
		return
	}
	h.writeJSON(w, http.StatusOK, loan)
}

// ListLoansHandler returns the caller's loans.
func (h *LedgerHandlers) ListLoansHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	loans, err := h.service.LoansForUser(r.Context(), user)
	if err != nil {
		h.handleServiceError(w, "list_loans", err)
		return
	}
	h.writeJSON(w, http.StatusOK, loans)
}

// LoanScheduleHandler returns a loan's amortization schedule.
func (h *LedgerHandlers) LoanScheduleHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	loanID, err := uuid.Parse(chi.URLParam(r, "loanID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid loan id")
		return
	}

	schedule, err := h.service.LoanSchedule(r.Context(), user, loanID)
	if err != nil {
		h.handleServiceError(w, "loan_schedule", err)
		return
	}
	h.writeJSON(w, http.StatusOK, schedule)
}
