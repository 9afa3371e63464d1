package apperr

import (
	"encoding/json"

	"google.golang.org/grpc/codes"
)

// Reason is a stable machine-readable code.
type Reason string

// ErrorResponse is the wire shape of every API error. Codes follow the grpc
// taxonomy and are mapped to HTTP statuses at the transport edge.
type ErrorResponse struct {
	Code    codes.Code        `json:"code"`
	Reason  Reason            `json:"reason,omitempty"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func New(message string, code codes.Code, details map[string]string) ErrorResponse {
	return ErrorResponse{Code: code, Message: message, Details: cloneDetails(details)}
}

func (e ErrorResponse) WithReason(r string) ErrorResponse { e.Reason = Reason(r); return e }

func (e ErrorResponse) WithDetail(k, v string) ErrorResponse {
	// Copy-on-write to keep builder-style methods immutable.
	details := cloneDetails(e.Details)
	if details == nil {
		details = map[string]string{}
	}
	details[k] = v
	e.Details = details
	return e
}

func (e ErrorResponse) Error() string {
	type out struct {
		Code    string            `json:"code"`
		Reason  Reason            `json:"reason,omitempty"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	}
	b, _ := json.Marshal(out{
		Code:    e.Code.String(),
		Reason:  e.Reason,
		Message: e.Message,
		Details: e.Details,
	})
	return string(b)
}

// Presets.

func InvalidArgument() ErrorResponse {
	return New("Invalid argument", codes.InvalidArgument, nil).WithReason("invalid_argument")
}
func NotFound() ErrorResponse {
	return New("Resource not found", codes.NotFound, nil).WithReason("not_found")
}
func AlreadyExists() ErrorResponse {
	return New("Resource already exists", codes.AlreadyExists, nil).WithReason("already_exists")
}
func FailedPrecondition() ErrorResponse {
	return New("Operation cannot be performed in the current state", codes.FailedPrecondition, nil).WithReason("failed_precondition")
}
func Internal() ErrorResponse {
	return New("Internal error", codes.Internal, nil).WithReason("internal")
}
func Unavailable() ErrorResponse {
	return New("Service unavailable", codes.Unavailable, nil).WithReason("unavailable")
}

func ValidationFields(fields map[string]string) ErrorResponse {
	return InvalidArgument().WithReason("validation_failed").withDetails(fields)
}

func (e ErrorResponse) withDetails(m map[string]string) ErrorResponse {
	for k, v := range m {
		e = e.WithDetail(k, v)
	}
	return e
}

func cloneDetails(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
