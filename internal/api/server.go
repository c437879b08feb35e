// Package api serves the debug HTTP surface: placement status and actions,
// the session journal, and the hit-trace chart.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/anchorpoint/internal/capability"
	"github.com/banshee-data/anchorpoint/internal/httputil"
	"github.com/banshee-data/anchorpoint/internal/journal"
	"github.com/banshee-data/anchorpoint/internal/monitoring"
	"github.com/banshee-data/anchorpoint/internal/placement"
	"github.com/banshee-data/anchorpoint/internal/session"
	"github.com/banshee-data/anchorpoint/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Placement is the controller surface the API drives.
type Placement interface {
	Supported(ctx context.Context) capability.Support
	Enter(ctx context.Context) error
	Confirm() placement.Transition
	Replace() placement.Transition
	Exit(ctx context.Context) error
	Status() placement.Status
	Stats() placement.Stats
}

// History is the journal query surface. Nil disables the journal routes.
type History interface {
	RecentSessions(ctx context.Context, limit int) ([]journal.SessionRow, error)
	FailureCounts(ctx context.Context) (map[string]int, error)
}

// Server holds the debug API's collaborators.
type Server struct {
	ctrl    Placement
	history History
	trace   http.HandlerFunc
	// enterTimeout bounds a POST /api/enter.
	enterTimeout time.Duration
}

// NewServer creates the API. history and trace may be nil.
func NewServer(ctrl Placement, history History, trace http.HandlerFunc) *Server {
	return &Server{ctrl: ctrl, history: history, trace: trace, enterTimeout: 30 * time.Second}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux registers every route.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/enter", s.post(s.enter))
	mux.HandleFunc("/api/confirm", s.post(s.confirm))
	mux.HandleFunc("/api/replace", s.post(s.replace))
	mux.HandleFunc("/api/exit", s.post(s.exit))
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/failures", s.showFailures)
	if s.trace != nil {
		mux.HandleFunc("/debug/trace", s.trace)
	}
	return mux
}

func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		h(w, r)
	}
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	out := s.ctrl.Status().Fields()
	out["supported"] = s.ctrl.Supported(r.Context()).String()
	out["stats"] = s.ctrl.Stats()
	out["version"] = version.Version
	httputil.WriteJSONOK(w, out)
}

func (s *Server) enter(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.enterTimeout)
	defer cancel()
	if err := s.ctrl.Enter(ctx); err != nil {
		switch {
		case errors.Is(err, placement.ErrAlreadyEntered):
			httputil.Conflict(w, err.Error())
		case errors.Is(err, session.ErrCanceled):
			httputil.Conflict(w, err.Error())
		default:
			httputil.WriteSessionError(w, err)
		}
		return
	}
	httputil.WriteJSONOK(w, s.ctrl.Status().Fields())
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.ctrl.Confirm().Fields())
}

func (s *Server) replace(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.ctrl.Replace().Fields())
}

func (s *Server) exit(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Exit(r.Context()); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.ctrl.Status().Fields())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "journal disabled")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	rows, err := s.history.RecentSessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if rows == nil {
		rows = []journal.SessionRow{}
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) showFailures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.history == nil {
		httputil.NotFound(w, "journal disabled")
		return
	}
	counts, err := s.history.FailureCounts(r.Context())
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, counts)
}
