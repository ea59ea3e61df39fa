package models

import (
	"errors"
	"fmt"
	"time"
)

// Application-wide standard errors
var (
	// User & Authentication Errors
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrUserNotFound           = errors.New("user not found")
	ErrSessionRevoked         = errors.New("session is revoked or expired")
	ErrTokenInvalid           = errors.New("token is invalid")
	ErrTokenExpired           = errors.New("token has expired")
	ErrTokenMalformed         = errors.New("token is malformed")

	// Quota Errors
	ErrRateLimitExceeded = errors.New("daily request limit exceeded")
	ErrQuotaStoreFailure = errors.New("quota store failure")

	// Generation Errors
	ErrUpstreamUnavailable = errors.New("generation upstream unavailable")
	ErrMalformedResponse   = errors.New("malformed generation response")

	// General Request/Server Errors
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Kinds of malformed generation responses.
const (
	MalformedKindParse  = "parse"
	MalformedKindSchema = "schema"
)

// MalformedResponseError reports a generation response that could not be
// turned into a scene. Kind is either MalformedKindParse (not valid JSON)
// or MalformedKindSchema (valid JSON, wrong shape). Both kinds are
// retryable by resubmitting the same request; the pipeline never retries
// on its own.
type MalformedResponseError struct {
	Kind   string
	Detail string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed generation response (%s): %s", e.Kind, e.Detail)
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }

// RateLimitError carries the structured quota denial surfaced to clients.
type RateLimitError struct {
	RequestClass RequestClass
	Limit        int
	ResetAt      time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit %d, resets at %s)",
		e.RequestClass, e.Limit, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }
