/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's core API
 * endpoints: families, accounts, transfers, balances, and history. Handlers
 * are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They
 * act as the bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hearthpay/ledger-service/internal/app"
	"github.com/hearthpay/ledger-service/internal/domain"
	"github.com/hearthpay/ledger-service/internal/store"
)

// LedgerHandlers holds the application service that handlers will use.
type LedgerHandlers struct {
	service            *app.Service
	rateLimiter        *app.RedisRateLimiter
	transferRatePerMin int
}

// NewLedgerHandlers creates a new instance of LedgerHandlers.
func NewLedgerHandlers(service *app.Service, rateLimiter *app.RedisRateLimiter, transferRatePerMin int) *LedgerHandlers {
	return &LedgerHandlers{
		service:            service,
		rateLimiter:        rateLimiter,
		transferRatePerMin: transferRatePerMin,
	}
}

// currentUser resolves the authenticated identity-provider subject into the
// internal user record. Writes the error response itself on failure.
func (h *LedgerHandlers) currentUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	externalID, ok := AuthSubject(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return nil, false
	}
	user, err := h.service.ResolveUser(r.Context(), externalID)
	if err != nil {
		log.Printf("level=warn component=api outcome=reject reason=user_resolution_failed external_id=%s err=%v", externalID, err)
		h.writeError(w, http.StatusBadRequest, "User not found")
		return nil, false
	}
	return user, true
}

// handleServiceError maps domain and store errors onto HTTP statuses.
func (h *LedgerHandlers) handleServiceError(w http.ResponseWriter, endpoint string, err error) {
	log.Printf("level=warn component=api endpoint=%s outcome=failed err=%v", endpoint, err)
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, store.ErrLimitExceeded):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, store.ErrInvalidStateTransition):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrFamilyNotFound),
		errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrEntryNotFound),
		errors.Is(err, store.ErrLoanNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, store.ErrChoreNotFound),
		errors.Is(err, store.ErrGoalNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrUnauthorized), errors.Is(err, app.ErrCrossFamily):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// consumeRateLimit applies the per-user distributed rate limit. Returns
// false after writing the 429 when the caller is over the limit.
func (h *LedgerHandlers) consumeRateLimit(w http.ResponseWriter, r *http.Request, scope string, subject string, limit int) bool {
	count, retryAfter, err := h.rateLimiter.ConsumeRateLimit(r.Context(), scope, subject, limit, time.Minute)
	if err != nil {
		// Fail open: a limiter outage must not block money movement.
		log.Printf("level=warn component=api msg=\"rate limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
		return true
	}
	if limit > 0 && count > limit {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again shortly.")
		return false
	}
	return true
}

type createFamilyRequest struct {
	Name          string `json:"name"`
	SpendPercent  int    `json:"spend_percent"`
	SavePercent   int    `json:"save_percent"`
	GivePercent   int    `json:"give_percent"`
	InvestPercent int    `json:"invest_percent"`
}

// CreateFamilyHandler creates a family owned by the caller and provisions
// the caller as its first parent member.
func (h *LedgerHandlers) CreateFamilyHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req createFamilyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	family, err := h.service.CreateFamily(r.Context(), user.ID, req.Name,
		req.SpendPercent, req.SavePercent, req.GivePercent, req.InvestPercent)
	if err != nil {
		h.handleServiceError(w, "create_family", err)
		return
	}

	log.Printf("level=info component=api endpoint=create_family outcome=created family_id=%s owner_id=%s", family.ID, user.ID)
	h.writeJSON(w, http.StatusCreated, family)
}

type joinFamilyRequest struct {
	JoinCode string `json:"join_code"`
	Role     string `json:"role"`
}

type joinFamilyResponse struct {
	Family   *domain.Family         `json:"family"`
	Accounts []domain.LedgerAccount `json:"accounts"`
}

// JoinFamilyHandler attaches the caller to a family via its invite code and
// provisions the four bucket accounts plus the seeded trust state.
func (h *LedgerHandlers) JoinFamilyHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req joinFamilyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	family, accounts, err := h.service.JoinFamilyByCode(r.Context(), user.ID, req.JoinCode, req.Role)
	if err != nil {
		h.handleServiceError(w, "join_family", err)
		return
	}

	log.Printf("level=info component=api endpoint=join_family outcome=joined family_id=%s user_id=%s role=%s", family.ID, user.ID, req.Role)
	h.writeJSON(w, http.StatusCreated, joinFamilyResponse{Family: family, Accounts: accounts})
}

// ListAccountsHandler returns the caller's bucket accounts.
func (h *LedgerHandlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	accounts, err := h.service.Accounts(r.Context(), user.ID)
	if err != nil {
		h.handleServiceError(w, "list_accounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// TransferHandler posts one double-entry transfer on behalf of the caller.
func (h *LedgerHandlers) TransferHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !h.consumeRateLimit(w, r, "transfer", user.ID.String(), h.transferRatePerMin) {
		return
	}

	var req domain.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.Transfer(r.Context(), user, req)
	if err != nil {
		h.handleServiceError(w, "transfer", err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	log.Printf("level=info component=api endpoint=transfer outcome=posted entry_id=%s amount=%d replayed=%t", result.Entry.ID, result.Entry.Amount, result.Replayed)
	h.writeJSON(w, status, result.Entry)
}

// BalanceHandler returns an account's balance, optionally as of a point in
// time (`as_of` query parameter, RFC 3339).
func (h *LedgerHandlers) BalanceHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid as_of timestamp; expected RFC 3339")
			return
		}
		asOf = &parsed
	}

	balance, err := h.service.Balance(r.Context(), user, accountID, asOf)
	if err != nil {
		h.handleServiceError(w, "balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"balance":    balance,
	})
}

// HistoryHandler returns an account's journal entries, newest first.
func (h *LedgerHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	entries, err := h.service.History(r.Context(), user, accountID, limit, offset)
	if err != nil {
		h.handleServiceError(w, "history", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// PeriodFlowHandler sums inbound or outbound entries over a window.
func (h *LedgerHandlers) PeriodFlowHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid start timestamp; expected RFC 3339")
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid end timestamp; expected RFC 3339")
		return
	}
	direction := domain.FlowDirection(r.URL.Query().Get("direction"))
	if direction != domain.FlowInbound && direction != domain.FlowOutbound {
		h.writeError(w, http.StatusBadRequest, "direction must be inbound or outbound")
		return
	}

	total, err := h.service.PeriodFlow(r.Context(), user, accountID, start, end, direction)
	if err != nil {
		h.handleServiceError(w, "period_flow", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": accountID,
		"direction":  direction,
		"total":      total,
	})
}

type setLimitsRequest struct {
	DailyLimit   *int64 `json:"daily_limit"`
	WeeklyLimit  *int64 `json:"weekly_limit"`
	MonthlyLimit *int64 `json:"monthly_limit"`
}

// SetLimitsHandler configures rolling spend limits on an account.
func (h *LedgerHandlers) SetLimitsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	var req setLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.service.SetSpendLimits(r.Context(), user, accountID, req.DailyLimit, req.WeeklyLimit, req.MonthlyLimit); err != nil {
		h.handleServiceError(w, "set_limits", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type reverseEntryRequest struct {
	Reason string `json:"reason"`
}

// ReverseEntryHandler posts a reversing entry for a posted journal entry.
func (h *LedgerHandlers) ReverseEntryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	entryID, err := uuid.Parse(chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid entry id")
		return
	}

	var req reverseEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	reversal, err := h.service.ReverseEntry(r.Context(), user, entryID, req.Reason)
	if err != nil {
		h.handleServiceError(w, "reverse_entry", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, reversal)
}

func parseIntQuery(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// writeJSON is a helper for writing JSON responses.
func (h *LedgerHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *LedgerHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
