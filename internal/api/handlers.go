package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/faultline-io/faultline/internal/apperr"
	"github.com/faultline-io/faultline/internal/jobs"
	"github.com/faultline-io/faultline/internal/payload"
	"github.com/faultline-io/faultline/internal/validate"
)

type submitRequest struct {
	Type           string        `json:"type" validate:"required,min=1,max=128"`
	Payload        payload.Value `json:"payload"`
	IdempotencyKey *string       `json:"idempotency_key" validate:"omitempty,min=1,max=255"`
	MaxAttempts    int32         `json:"max_attempts" validate:"omitempty,min=1,max=100"`
}

type submitResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type jobResponse struct {
	ID          string  `json:"id"`
	State       string  `json:"state"`
	Attempts    int32   `json:"attempts"`
	MaxAttempts int32   `json:"max_attempts"`
	LastError   *string `json:"last_error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.InvalidArgument().WithDetail("body", "malformed JSON").ToHTTP(w)
		return
	}
	if fields := validate.Struct(req); fields != nil {
		apperr.ValidationFields(fields).ToHTTP(w)
		return
	}

	j, err := s.submitter.Submit(r.Context(), s.run, jobs.SubmitInput{
		Type:           req.Type,
		Payload:        req.Payload,
		IdempotencyKey: req.IdempotencyKey,
		MaxAttempts:    req.MaxAttempts,
	})
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}

	// Postgres is truth; the stream is advisory coordination.
	s.stream.Publish(r.Context(), j.ID)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(submitResponse{ID: j.ID.String(), State: string(j.State)})
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrIdempotencyConflict):
		apperr.AlreadyExists().
			WithReason("idempotency_conflict").
			WithDetail("cause", "idempotency key reused with a different payload").
			ToHTTP(w)
	default:
		s.log.Errorw("submit_failed", "error", err.Error())
		apperr.Unavailable().WithReason("store_unavailable").ToHTTP(w)
	}
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		apperr.InvalidArgument().WithDetail("id", "not a UUID").ToHTTP(w)
		return
	}

	j, err := s.store.GetByID(r.Context(), s.run, id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			apperr.NotFound().WithDetail("job_id", id.String()).ToHTTP(w)
			return
		}
		s.log.Errorw("get_job_failed", "job_id", id.String(), "error", err.Error())
		apperr.Unavailable().WithReason("store_unavailable").ToHTTP(w)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(jobResponse{
		ID:          j.ID.String(),
		State:       string(j.State),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		LastError:   j.LastError,
	})
}
