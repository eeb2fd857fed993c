// CLAUDE:SUMMARY HTTP surface: intake, status, listing, resubmit, staleness and health over chi.
// Package httpapi exposes the pipeline over HTTP.
//
// Authorization is enforced by an upstream collaborator; the owner reference
// is treated as an opaque filter value here.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Haroldtrapier/sturgeon-ai-sub000/blobstore"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/idgen"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/jobstore"
	"github.com/Haroldtrapier/sturgeon-ai-sub000/shield"
)

// Server holds handler dependencies.
type Server struct {
	jobs     *jobstore.Store
	blobs    *blobstore.Store
	maxBytes int64
	staleAge StaleAge
	limiter  *shield.RateLimiter
	log      *slog.Logger
	newJobID idgen.Generator
	newBlob  idgen.Generator
	done     chan struct{}
}

// StaleAge supplies the processing-age threshold for the staleness view.
type StaleAge func() (minutes int)

// Options configures a Server.
type Options struct {
	// MaxBytes caps the upload body size. Zero means 25 MiB.
	MaxBytes int64
	// StaleAfterMin is the processing-age threshold in minutes for
	// GET /v1/stale. Zero means 30.
	StaleAfterMin int
	// RateLimit is the per-IP request budget. A zero MaxRequests disables
	// limiting; a zero Window means one minute.
	RateLimit shield.Limit
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

// NewServer wires the HTTP surface over the given stores.
func NewServer(jobs *jobstore.Store, blobs *blobstore.Store, opts Options) *Server {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 25 << 20
	}
	if opts.StaleAfterMin <= 0 {
		opts.StaleAfterMin = 30
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		jobs:     jobs,
		blobs:    blobs,
		maxBytes: opts.MaxBytes,
		staleAge: func() int { return opts.StaleAfterMin },
		limiter:  shield.NewRateLimiter(opts.RateLimit, "/v1/health"),
		log:      opts.Logger,
		newJobID: idgen.Prefixed("job_", idgen.Default),
		newBlob:  idgen.Prefixed("blob_", idgen.Default),
		done:     make(chan struct{}),
	}
	s.limiter.StartGC(s.done)
	return s
}

// Close stops the server's background maintenance. Call it once at shutdown.
func (s *Server) Close() {
	close(s.done)
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestID)
	r.Use(middleware.Recoverer)
	r.Use(shield.SecurityHeaders)
	r.Use(s.limiter.Middleware)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/documents", s.handleSubmit)
		r.Get("/documents", s.handleList)
		r.Get("/documents/{id}", s.handleGet)
		r.Post("/documents/{id}/resubmit", s.handleResubmit)
		r.Get("/stale", s.handleStale)
		r.Get("/health", s.handleHealth)
	})
	return r
}

// requestID tags every request with a generated id for log correlation.
func (s *Server) requestID(next http.Handler) http.Handler {
	gen := idgen.Prefixed("req_", idgen.Default)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			rid = gen()
		}
		w.Header().Set("X-Request-Id", rid)
		next.ServeHTTP(w, r)
	})
}
