package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	err := &pgconn.PgError{Code: SQLStateUniqueViolation, ConstraintName: "jobs_idempotency_key_key"}
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation")
	}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", err)) {
		t.Fatalf("expected unique violation through wrapping")
	}
	if IsUniqueViolation(errors.New("other")) {
		t.Fatalf("plain error is not a unique violation")
	}

	name, ok := UniqueConstraint(err)
	if !ok || name != "jobs_idempotency_key_key" {
		t.Fatalf("expected constraint name, got %q %v", name, ok)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "serialization", err: &pgconn.PgError{Code: SQLStateSerializationFail}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: SQLStateDeadlockDetected}, want: true},
		{name: "connection class", err: &pgconn.PgError{Code: "08006"}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: SQLStateUniqueViolation}, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
