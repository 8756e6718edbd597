package app

import "errors"

// Business-rule errors surfaced to the API layer. Store-level sentinels
// (not found, insufficient funds, limit exceeded, invalid transition) pass
// through unwrapped so handlers can dispatch on either package.
var (
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("caller not authorized for target entity")
	ErrCrossFamily        = errors.New("cross-family transfer rejected")
	ErrConflictRetryLimit = errors.New("conflicting concurrent update; retries exhausted")
)

// maxConflictRetries bounds optimistic retries on serialization conflicts
// before the conflict is surfaced to the caller.
const maxConflictRetries = 3
