package preview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"TemplateStudio/internal/template"

	"github.com/gorilla/mux"
)

// ErrorResponse represents a standardised JSON error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Documents is the read side of the template store
type Documents interface {
	Get(ctx context.Context, id string) (template.Template, error)
	List(ctx context.Context) ([]template.Template, error)
}

// Server serves the live preview of the editor
type Server struct {
	hub     *Hub
	content func() string
	docs    Documents
	logger  *slog.Logger
}

// NewServer creates a preview server. docs may be nil.
func NewServer(hub *Hub, content func() string, docs Documents, logger *slog.Logger) *Server {
	return &Server{hub: hub, content: content, docs: docs, logger: logger}
}

// Router returns the HTTP routes of the preview
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleDocument).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS)
	r.HandleFunc("/templates", s.handleListTemplates).Methods(http.MethodGet)
	r.HandleFunc("/templates/{id}", s.handleGetTemplate).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write([]byte(s.content())); err != nil {
		s.logger.Warn("failed to write preview document", "error", err)
	}
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		jsonError(w, s.logger, "Template store not configured", http.StatusServiceUnavailable)
		return
	}

	list, err := s.docs.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list templates", "error", err)
		jsonError(w, s.logger, "Failed to list templates", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(list); err != nil {
		s.logger.Error("failed to encode template list", "error", err)
	}
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	if s.docs == nil {
		jsonError(w, s.logger, "Template store not configured", http.StatusServiceUnavailable)
		return
	}

	id := mux.Vars(r)["id"]
	t, err := s.docs.Get(r.Context(), id)
	if errors.Is(err, template.ErrNotFound) {
		jsonError(w, s.logger, "Template not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("failed to load template", "template_id", id, "error", err)
		jsonError(w, s.logger, "Failed to load template", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(t.HTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "subscribers": s.hub.Count()})
}

// jsonError writes a JSON error response with the specified status code
func jsonError(w http.ResponseWriter, logger *slog.Logger, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}
