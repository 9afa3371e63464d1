package logger

import (
	"errors"
	"testing"
)

func TestNew_KnownEnvs(t *testing.T) {
	t.Parallel()

	for _, env := range []string{"development", "production", "", "staging"} {
		l, err := New("faultline-test", env)
		if err != nil {
			t.Fatalf("env %q: unexpected error: %v", env, err)
		}
		if l == nil || l.SugaredLogger == nil {
			t.Fatalf("env %q: expected logger", env)
		}
		l.SafeSync()
	}
}

func TestWith_ReturnsChildLogger(t *testing.T) {
	t.Parallel()

	l := Nop()
	child := l.With("worker_id", "w-1")
	if child == nil || child.SugaredLogger == nil {
		t.Fatalf("expected child logger")
	}
}

func TestSafeSync_NilReceiver(t *testing.T) {
	t.Parallel()

	var l *Logger
	l.SafeSync() // must not panic
}

func TestIsIgnorableSyncError(t *testing.T) {
	t.Parallel()

	if !isIgnorableSyncError(errors.New("sync /dev/stdout: invalid argument")) {
		t.Fatalf("expected invalid argument to be ignorable")
	}
	if isIgnorableSyncError(errors.New("disk full")) {
		t.Fatalf("expected disk full to be reported")
	}
	if isIgnorableSyncError(nil) {
		t.Fatalf("nil is not an error")
	}
}
