/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers, auth AuthConfig) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		// Apply JWT authentication middleware for production
		r.Use(RequireAuth(auth))

		// Family and account endpoints
		r.Post("/families", h.CreateFamilyHandler)
		r.Post("/families/join", h.JoinFamilyHandler)
		r.Get("/accounts", h.ListAccountsHandler)
		r.Get("/accounts/{accountID}/balance", h.BalanceHandler)
		r.Get("/accounts/{accountID}/history", h.HistoryHandler)
		r.Get("/accounts/{accountID}/flow", h.PeriodFlowHandler)
		r.Put("/accounts/{accountID}/limits", h.SetLimitsHandler)

		// Ledger endpoints
		r.Post("/transfers", h.TransferHandler)
		r.Post("/entries/{entryID}/reverse", h.ReverseEntryHandler)

		// Loan endpoints
		r.Post("/loans", h.CreateLoanHandler)
		r.Get("/loans", h.ListLoansHandler)
		r.Get("/loans/{loanID}", h.GetLoanHandler)
		r.Get("/loans/{loanID}/schedule", h.LoanScheduleHandler)
		r.Post("/loans/{loanID}/approve", h.ApproveLoanHandler)
		r.Post("/loans/{loanID}/reject", h.RejectLoanHandler)
		r.Post("/loans/{loanID}/payments", h.RecordLoanPaymentHandler)

		// Chore endpoints
		r.Post("/chores", h.CreateChoreHandler)
		r.Get("/chores", h.ListChoresHandler)
		r.Get("/chores/mine", h.ListMyChoresHandler)
		r.Post("/chores/{choreID}/claim", h.ClaimChoreHandler)
		r.Post("/chores/{choreID}/complete", h.CompleteChoreHandler)
		r.Post("/chores/{choreID}/approve", h.ApproveChoreHandler)
		r.Post("/chores/{choreID}/reject", h.RejectChoreHandler)

		// Savings goal endpoints
		r.Post("/goals", h.CreateGoalHandler)
		r.Get("/goals", h.ListGoalsHandler)
		r.Put("/goals/{goalID}/progress", h.UpdateGoalProgressHandler)
		r.Post("/goals/{goalID}/cancel", h.CancelGoalHandler)

		// Trust score endpoints
		r.Get("/trust/score", h.TrustScoreHandler)
		r.Get("/trust/history", h.TrustHistoryHandler)
		r.Get("/trust/tier", h.TrustTierHandler)
		r.Get("/trust/streak", h.SavingStreakHandler)
		r.Get("/trust/events", h.TrustEventsHandler)
		r.Post("/trust/endorse/{userID}", h.EndorseChildHandler)
	})

	return r
}
