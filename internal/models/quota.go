package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestClass is the quota dimension. Each class is tracked
// independently per user.
type RequestClass string

const (
	RequestClassText  RequestClass = "text_generation"
	RequestClassImage RequestClass = "image_generation"
	RequestClassVoice RequestClass = "voice_generation"
)

// QuotaRecord is one persisted daily counter, one row per
// (user, request class). RequestCount resets to 1 (never increments)
// whenever WindowStartTime falls on a prior UTC day.
type QuotaRecord struct {
	UserID          uuid.UUID    `db:"user_id"`
	RequestClass    RequestClass `db:"request_class"`
	WindowStartTime time.Time    `db:"window_start_time"`
	RequestCount    int          `db:"request_count"`
}

// Error kinds reported in RateLimitResult.
const (
	QuotaErrorRateLimited  = "RateLimitExceeded"
	QuotaErrorStoreFailure = "StoreFailure"
)

// RateLimitResult is the outcome of a quota check-and-consume. ErrorKind
// is empty on success.
type RateLimitResult struct {
	Success   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	ErrorKind string
}

// StartOfDayUTC truncates t to UTC midnight.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfNextDayUTC returns the next UTC midnight after t, i.e. the
// moment a rejected caller's window resets.
func StartOfNextDayUTC(t time.Time) time.Time {
	return StartOfDayUTC(t).Add(24 * time.Hour)
}

// SameUTCDay reports whether a and b fall on the same UTC calendar day.
func SameUTCDay(a, b time.Time) bool {
	return StartOfDayUTC(a).Equal(StartOfDayUTC(b))
}
