// Package web serves the question page, the JSON API and operational endpoints.
package web

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/JonMunkholm/nlq/internal/observability"
	"github.com/JonMunkholm/nlq/internal/schema"
	"github.com/JonMunkholm/nlq/internal/session"
)

const (
	sessionCookie  = "nlq_session"
	schemaTimeout  = 30 * time.Second
	maxQuestionLen = 2000
)

//go:embed templates/index.html
var templateFS embed.FS

// SchemaSource is the cached schema plus a way to reload it.
type SchemaSource interface {
	GetTables() []schema.Table
	TableCount() int
	GetLastRefresh() time.Time
	Refresh(ctx context.Context) error
}

// Info describes the running configuration on the details panel.
type Info struct {
	Backend string
	Model   string
}

type Options struct {
	Invoker  session.Invoker
	Sessions *session.Manager
	Schema   SchemaSource
	Info     Info
	Logger   zerolog.Logger
}

type Server struct {
	invoker  session.Invoker
	sessions *session.Manager
	schema   SchemaSource
	info     Info
	tmpl     *template.Template
	logger   zerolog.Logger
}

func New(opts Options) (*Server, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"percent": percent,
	}).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, err
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager()
	}
	return &Server{
		invoker:  opts.Invoker,
		sessions: sessions,
		schema:   opts.Schema,
		info:     opts.Info,
		tmpl:     tmpl,
		logger:   opts.Logger,
	}, nil
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.LoggingMiddleware(s.logger))
	r.Use(observability.MetricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Post("/ask", s.handleAskForm)
	r.Post("/clear", s.handleClearForm)
	r.Get("/export.csv", s.handleExportCSV)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Get("/history", s.handleHistory)
		r.Get("/details", s.handleDetails)
		r.Post("/clear", s.handleClear)
	})

	r.Get("/schema", s.handleSchema)
	r.Post("/schema/refresh", s.handleSchemaRefresh)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func sessionID(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// readSession returns the caller's stored session, or an empty one that is
// never stored. Read-only routes use it so they do not grow the manager.
func (s *Server) readSession(r *http.Request) *session.Session {
	if sess, ok := s.sessions.Lookup(sessionID(r)); ok {
		return sess
	}
	return session.New("")
}

// writeSession resolves the caller's session, storing it when new, and
// refreshes its cookie.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request) *session.Session {
	id := sessionID(r)
	sess := s.sessions.Get(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
