// Package httpapi exposes the router's admin and ingress surface over
// HTTP: liveness, Prometheus metrics, an on-demand reaper trigger, and
// the thin per-transport ingress endpoints.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webordinary/router/internal/domain"
	"github.com/webordinary/router/internal/ingress/chat"
	"github.com/webordinary/router/internal/ingress/email"
	"github.com/webordinary/router/internal/ingress/sms"
	loggingmw "github.com/webordinary/router/internal/logging"
	metricsmw "github.com/webordinary/router/internal/metrics"
	"github.com/webordinary/router/internal/reaper"
	"github.com/webordinary/router/internal/router"
	"github.com/webordinary/router/internal/util/sanitize"
)

// logInstructionMaxLen bounds how much of an untrusted instruction
// body is echoed into a log line (§7 logging).
const logInstructionMaxLen = 200

// Router is the subset of router.Router the ingress handlers need.
type Router interface {
	Route(ctx context.Context, ingress domain.IngressMsg) (router.RoutingDecision, error)
}

// Reaper is the subset of reaper.Reaper the admin endpoint needs.
type Reaper interface {
	Run(ctx context.Context) (reaper.Result, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server wires the ingress router and reaper to a net/http ServeMux.
type Server struct {
	Router Router
	Reaper Reaper
	DB     Pinger
	Log    *slog.Logger
}

// New builds a Server. db may be a *sql.DB; it only needs PingContext.
func New(r Router, rp Reaper, db *sql.DB, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{Router: r, Reaper: rp, DB: db, Log: log}
}

// Handler builds the full mux, wrapped in logging and metrics
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /admin/reap", s.handleReap)
	mux.HandleFunc("POST /ingress/{transport}", s.handleIngress)
	return metricsmw.HTTPMiddleware(loggingmw.HTTPMiddleware(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.PingContext(r.Context()); err != nil {
		s.Log.Error("healthz: store unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReap(w http.ResponseWriter, r *http.Request) {
	result, err := s.Reaper.Run(r.Context())
	if err != nil {
		s.Log.Error("admin reap failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleIngress(w http.ResponseWriter, r *http.Request) {
	transport := r.PathValue("transport")

	raw, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	var msg domain.IngressMsg
	switch transport {
	case "email":
		msg, err = email.Decode(raw)
	case "sms":
		msg, err = sms.Decode(raw)
	case "chat":
		msg, err = chat.Decode(raw)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transport " + transport})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "decode: " + err.Error()})
		return
	}

	decision, err := s.Router.Route(r.Context(), msg)
	if err != nil {
		s.Log.Warn("route failed",
			"transport", transport, "instruction", sanitize.ForLog(msg.Instruction, logInstructionMaxLen), "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, decision)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
