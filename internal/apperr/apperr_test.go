package apperr

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
)

func TestWithDetail_CopyOnWrite(t *testing.T) {
	t.Parallel()

	base := NotFound().WithDetail("job_id", "a")
	forked := base.WithDetail("job_id", "b")

	if base.Details["job_id"] != "a" {
		t.Fatalf("base mutated: %v", base.Details)
	}
	if forked.Details["job_id"] != "b" {
		t.Fatalf("fork missing detail: %v", forked.Details)
	}
}

func TestHTTPStatus_Mapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code codes.Code
		want int
	}{
		{codes.InvalidArgument, http.StatusBadRequest},
		{codes.NotFound, http.StatusNotFound},
		{codes.AlreadyExists, http.StatusConflict},
		{codes.FailedPrecondition, http.StatusPreconditionFailed},
		{codes.Unavailable, http.StatusServiceUnavailable},
		{codes.Internal, http.StatusInternalServerError},
		{codes.Unknown, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := HTTPStatus(tc.code); got != tc.want {
			t.Fatalf("code %v: expected %d, got %d", tc.code, tc.want, got)
		}
	}
}

func TestToHTTP_WritesJSONBody(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	Unavailable().WithDetail("cause", "store down").ToHTTP(rec)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"reason":"unavailable"`) || !strings.Contains(body, "store down") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestError_IsJSON(t *testing.T) {
	t.Parallel()

	s := ValidationFields(map[string]string{"type": "required"}).Error()
	if !strings.Contains(s, "validation_failed") || !strings.Contains(s, "required") {
		t.Fatalf("unexpected error string: %s", s)
	}
}
