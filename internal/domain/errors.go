package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// ErrConnection marks a failed subscription or fetch round trip. It is terminal for the
	// attempt; recovery is an explicit refresh.
	ErrConnection = errors.New("connection error")
	// ErrMutation marks a failed write whose optimistic local state was kept.
	ErrMutation = errors.New("mutation error")
)
