// Package devserver exposes an in-memory backing store over the REST API the
// HTTPStore client speaks. It exists for local development and end-to-end
// tests; it has no persistence and no auth.
package devserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roadbook/roadbook/internal/remote"
)

// Server serves the document API over a remote.Store.
type Server struct {
	store  remote.Store
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server over the given store.
func New(store remote.Store, opts ...Option) *Server {
	s := &Server{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1/{collection}", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Put("/", s.handleInsert)
			r.Get("/", s.handleFetch)
			r.Patch("/", s.handleMerge)
			r.Delete("/", s.handleDelete)
			r.Post("/array-union", s.handleArrayUnion)
			r.Post("/array-remove", s.handleArrayRemove)
		})
	})
	return r
}

type docRequest struct {
	Fields map[string]any `json:"fields"`
}

type arrayOpRequest struct {
	Field   string   `json:"field"`
	Members []string `json:"members"`
}

type listResponse struct {
	Docs []remote.Doc `json:"docs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req docRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, remote.NewError(remote.KindInvalidArgument, "insert", "malformed request body"))
		return
	}
	doc := remote.Doc{
		Collection: chi.URLParam(r, "collection"),
		ID:         chi.URLParam(r, "id"),
		Fields:     req.Fields,
	}
	if err := s.store.Insert(r.Context(), doc); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	doc, err := s.store.Fetch(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req docRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, remote.NewError(remote.KindInvalidArgument, "merge_fields", "malformed request body"))
		return
	}
	err := s.store.MergeFields(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"), req.Fields)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArrayUnion(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeArrayOp(w, r, "array_union")
	if !ok {
		return
	}
	err := s.store.ArrayUnion(r.Context(),
		chi.URLParam(r, "collection"), chi.URLParam(r, "id"), req.Field, req.Members)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArrayRemove(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeArrayOp(w, r, "array_remove")
	if !ok {
		return
	}
	err := s.store.ArrayRemove(r.Context(),
		chi.URLParam(r, "collection"), chi.URLParam(r, "id"), req.Field, req.Members)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decodeArrayOp(w http.ResponseWriter, r *http.Request, op string) (arrayOpRequest, bool) {
	var req arrayOpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, remote.NewError(remote.KindInvalidArgument, op, "malformed request body"))
		return arrayOpRequest{}, false
	}
	if req.Field == "" {
		s.writeError(w, remote.NewError(remote.KindInvalidArgument, op, "field is required"))
		return arrayOpRequest{}, false
	}
	return req, true
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	orderBy := r.URL.Query().Get("order_by")
	if orderBy == "" {
		orderBy = remote.OrderField
	}
	docs, err := s.store.List(r.Context(), chi.URLParam(r, "collection"), orderBy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if docs == nil {
		docs = []remote.Doc{}
	}
	writeJSON(w, http.StatusOK, listResponse{Docs: docs})
}

// writeError renders a failure in the wire shape the HTTPStore client parses:
// a JSON body carrying the error kind, plus the matching HTTP status.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := remote.KindInternal
	message := err.Error()

	var se *remote.StoreError
	if errors.As(err, &se) {
		kind = se.Kind
		message = se.Message
	} else {
		s.logger.Error("unclassified store failure", "error", err)
	}

	body := map[string]any{
		"error": map[string]string{
			"kind":    string(kind),
			"message": message,
		},
	}
	writeJSON(w, statusForKind(kind), body)
}

func statusForKind(kind remote.ErrorKind) int {
	switch kind {
	case remote.KindInvalidArgument:
		return http.StatusBadRequest
	case remote.KindUnauthenticated:
		return http.StatusUnauthorized
	case remote.KindPermissionDenied:
		return http.StatusForbidden
	case remote.KindNotFound:
		return http.StatusNotFound
	case remote.KindFailedPrecondition:
		return http.StatusPreconditionFailed
	case remote.KindUnavailable:
		return http.StatusServiceUnavailable
	case remote.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
