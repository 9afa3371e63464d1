package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/faultline-io/faultline/internal/payload"
)

// Job is one unit of work. The row in the jobs table is the serialization
// point for everything that happens to it.
type Job struct {
	ID             uuid.UUID
	Type           string
	Payload        payload.Value
	IdempotencyKey *string
	PayloadHash    string

	State       State
	Attempts    int32
	MaxAttempts int32

	LeaseOwner     *string
	LeaseExpiresAt *time.Time
	// FencingToken increases by exactly one on every successful claim and
	// never decreases. It names the lease generation; any write predicated
	// on an old token is rejected.
	FencingToken int64

	NextRunAt *time.Time
	LastError *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry records the side-effect of one successful execution attempt.
// The (JobID, FencingToken) primary key is the exactly-once primitive.
type LedgerEntry struct {
	JobID        uuid.UUID
	FencingToken int64
	AccountID    string
	Delta        int64
	AppliedAt    time.Time
}

// Effect is what a handler wants recorded in the ledger.
type Effect struct {
	AccountID string
	Delta     int64
}

// EffectFromJob derives the default ledger effect from the job payload,
// falling back to the job type and a unit delta.
func EffectFromJob(j *Job) Effect {
	account, ok := j.Payload.StringField("account_id")
	if !ok || account == "" {
		account = j.Type
	}
	delta, ok := j.Payload.IntField("delta")
	if !ok {
		delta = 1
	}
	return Effect{AccountID: account, Delta: delta}
}

// NewWorkerID returns the process-scoped worker identity.
func NewWorkerID() string {
	return "worker-" + uuid.NewString()
}
