package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/TobiSchelling/swift/internal/export"
	"github.com/TobiSchelling/swift/internal/model"
)

// maxBodyBytes caps triage request bodies.
const maxBodyBytes = 8 << 20

// Runner runs one triage batch.
type Runner interface {
	Run(ctx context.Context, ideas []model.Idea, cfg model.EvaluationConfig, limit int) (*model.BatchResult, error)
}

// Options holds the defaults applied to requests that omit them.
type Options struct {
	Evaluation  model.EvaluationConfig
	CORSOrigins []string
}

// Server is the HTTP surface for triage runs.
type Server struct {
	runner Runner
	opts   Options
	router chi.Router
}

// New creates a new Server.
func New(runner Runner, opts Options) *Server {
	s := &Server{runner: runner, opts: opts, router: chi.NewRouter()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/triage", s.handleTriage)
		r.Post("/report", s.handleReport)
	})
}

// IdeaInput is one idea in a request body.
type IdeaInput struct {
	ID       string `json:"id"`
	Problem  string `json:"problem"`
	Solution string `json:"solution"`
}

// ConfigInput overrides the server's evaluation defaults. Empty fields keep
// the default.
type ConfigInput struct {
	Strictness   string `json:"strictness"`
	Criteria     string `json:"criteria"`
	OutputFormat string `json:"output_format"`
	Profile      string `json:"profile"`
	MaxTokens    int    `json:"max_tokens"`
	Language     string `json:"language"`
}

// TriageRequest is the body of POST /api/triage and POST /api/report.
type TriageRequest struct {
	Ideas  []IdeaInput  `json:"ideas"`
	Config *ConfigInput `json:"config,omitempty"`
	Limit  *int         `json:"limit,omitempty"`
}

// TriageResponse is the body returned by POST /api/triage.
type TriageResponse struct {
	RunID    string             `json:"run_id"`
	Kept     []model.ItemResult `json:"kept"`
	Filtered []model.ItemResult `json:"filtered"`
	All      []model.ItemResult `json:"all"`
	Skipped  []int              `json:"skipped"`
	Digest   []string           `json:"digest"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	result, ok := s.run(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, TriageResponse{
		RunID:    result.RunID,
		Kept:     nonNil(result.Kept()),
		Filtered: nonNil(result.Filtered()),
		All:      nonNil(result.All()),
		Skipped:  nonNilInts(result.Skipped),
		Digest:   nonNilStrings(result.Digest),
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	result, ok := s.run(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := export.WriteHTML(w, result); err != nil {
		zap.L().Error("rendering report", zap.Error(err))
	}
}

// run decodes the request and runs the batch. It writes the error response
// itself and reports whether the caller should continue.
func (s *Server) run(w http.ResponseWriter, r *http.Request) (*model.BatchResult, bool) {
	var req TriageRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}

	ideas, cfg, limit, err := s.prepare(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	result, err := s.runner.Run(r.Context(), ideas, cfg, limit)
	if err != nil {
		if model.IsKind(err, model.KindValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil, false
		}
		zap.L().Error("triage run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "triage run failed")
		return nil, false
	}
	return result, true
}

// prepare turns a request into pipeline input, filling defaults.
func (s *Server) prepare(req TriageRequest) ([]model.Idea, model.EvaluationConfig, int, error) {
	if len(req.Ideas) == 0 {
		return nil, model.EvaluationConfig{}, 0, model.NewError(model.KindValidation, nil, "request contains no ideas")
	}

	ideas := make([]model.Idea, len(req.Ideas))
	for i, in := range req.Ideas {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		ideas[i] = model.Idea{ID: id, Row: i, Problem: in.Problem, Solution: in.Solution}
	}

	cfg := s.opts.Evaluation
	if c := req.Config; c != nil {
		if c.Strictness != "" {
			st, err := model.ParseStrictness(c.Strictness)
			if err != nil {
				return nil, cfg, 0, err
			}
			cfg.Strictness = st
		}
		if c.Criteria != "" {
			cfg.Criteria = c.Criteria
		}
		if c.OutputFormat != "" {
			cfg.OutputFormat = c.OutputFormat
		}
		if c.Profile != "" {
			cfg.Profile = c.Profile
		}
		if c.MaxTokens != 0 {
			cfg.MaxTokens = c.MaxTokens
		}
		if c.Language != "" {
			cfg.Language = c.Language
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, 0, err
	}

	// Without an explicit limit every idea in the request is judged.
	limit := len(ideas)
	if req.Limit != nil {
		limit = *req.Limit
	}
	return ideas, cfg, limit, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("writing response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil(items []model.ItemResult) []model.ItemResult {
	if items == nil {
		return []model.ItemResult{}
	}
	return items
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// Serve starts the HTTP server on the given port and shuts it down when ctx
// is cancelled.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("server listening", zap.String("url", "http://"+addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		return nil
	}
}
