package apperr

import (
	"encoding/json"
	"net/http"

	"google.golang.org/grpc/codes"
)

func HTTPStatus(code codes.Code) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (e ErrorResponse) ToHTTP(w http.ResponseWriter) {
	status := HTTPStatus(e.Code)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Code    string            `json:"code"`
		Reason  Reason            `json:"reason,omitempty"`
		Message string            `json:"message"`
		Details map[string]string `json:"details,omitempty"`
	}{
		Code:    e.Code.String(),
		Reason:  e.Reason,
		Message: e.Message,
		Details: e.Details,
	})
}
