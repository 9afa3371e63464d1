package jobs

import "errors"

var (
	// ErrStaleToken means the stored fencing token no longer matches the
	// caller's. Another worker holds a newer lease generation.
	ErrStaleToken = errors.New("jobs: stale fencing token")

	// ErrLeaseExpired means the caller's lease deadline passed by store time.
	ErrLeaseExpired = errors.New("jobs: lease expired")

	// ErrIdempotencyConflict means an idempotency key was reused with a
	// different payload. Never retried.
	ErrIdempotencyConflict = errors.New("jobs: idempotency key reused with different payload")

	// ErrNotFound means the job id does not exist.
	ErrNotFound = errors.New("jobs: not found")

	// ErrUnknownType means no handler is registered for the job type.
	ErrUnknownType = errors.New("jobs: unknown job type")

	// ErrInvariantViolation marks states that should be unreachable. The
	// worker logs and exits; reconciler and operators recover.
	ErrInvariantViolation = errors.New("jobs: invariant violation")
)

// IsFencingRejection reports whether err is an expected contention outcome:
// the attempt aborts silently, no attempt is charged, no failure is logged.
func IsFencingRejection(err error) bool {
	return errors.Is(err, ErrStaleToken) || errors.Is(err, ErrLeaseExpired)
}

// StaleReason labels a fencing rejection for the stale_write_blocked event.
func StaleReason(err error) string {
	switch {
	case errors.Is(err, ErrStaleToken):
		return "token_mismatch"
	case errors.Is(err, ErrLeaseExpired):
		return "lease_expired"
	default:
		return ""
	}
}
