package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/faultline-io/faultline/internal/jobs"
	"github.com/faultline-io/faultline/internal/logger"
	"github.com/faultline-io/faultline/internal/metrics"
	"github.com/faultline-io/faultline/internal/notify"
	pg "github.com/faultline-io/faultline/internal/postgres"
)

// Server is the submission surface. It owns no state beyond its
// collaborators; all durability lives in the store.
type Server struct {
	submitter *jobs.Submitter
	store     *jobs.Store
	run       pg.Runner
	stream    *notify.Stream // nil when redis is not configured

	log *logger.Logger
	met *metrics.Set
}

func NewServer(submitter *jobs.Submitter, store *jobs.Store, run pg.Runner, stream *notify.Stream, log *logger.Logger, met *metrics.Set) *Server {
	return &Server{
		submitter: submitter,
		store:     store,
		run:       run,
		stream:    stream,
		log:       log,
		met:       met,
	}
}

// Router wires the public routes. healthPing reports store reachability for
// /health; nil means liveness only.
func (s *Server) Router(healthPing func(ctx context.Context, r *http.Request) error) http.Handler {
	r := mux.NewRouter()
	r.Use(s.countRequests)

	r.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/jobs/{id}", s.handleGet).Methods(http.MethodGet)

	metricsHandler, _ := metrics.NewHandler(metrics.Options{
		Register:      s.met.Register,
		Health:        healthPing,
		HealthTimeout: time.Second,
	})
	r.PathPrefix("/metrics").Handler(metricsHandler)
	r.PathPrefix("/health").Handler(metricsHandler)

	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.met.APIRequests.Inc()
		next.ServeHTTP(w, r)
	})
}
