// Package api exposes the registry, job manager and progress hub over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.dedis.ch/onet/v3/log"

	"github.com/kafargo/neural-network-intro/config"
	"github.com/kafargo/neural-network-intro/dataset"
	"github.com/kafargo/neural-network-intro/jobs"
	"github.com/kafargo/neural-network-intro/nn"
	"github.com/kafargo/neural-network-intro/persist"
	"github.com/kafargo/neural-network-intro/pubsub"
	"github.com/kafargo/neural-network-intro/registry"
	"github.com/kafargo/neural-network-intro/visual"
)

// Server binds the HTTP surface to the core components.
type Server struct {
	reg      *registry.Registry
	mgr      *jobs.Manager
	hub      *pubsub.Hub
	test     []dataset.Sample
	defaults config.Defaults
}

// NewServer wires the handlers. test is the held-out set served by the
// prediction and example endpoints; hub may be nil to disable /ws.
func NewServer(reg *registry.Registry, mgr *jobs.Manager, hub *pubsub.Hub, test []dataset.Sample, defaults config.Defaults) *Server {
	return &Server{reg: reg, mgr: mgr, hub: hub, test: test, defaults: defaults}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/networks", s.handleNetworks)
	mux.HandleFunc("/api/networks/", s.handleNetworkSub)
	mux.HandleFunc("/api/training/", s.handleTrainingStatus)
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return allowAllOrigins(mux)
}

// allowAllOrigins opens the API to cross-origin browser clients.
func allowAllOrigins(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("encoding response failed:", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, nn.ErrInvalidArchitecture):
		code = http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, jobs.ErrNotFound),
		errors.Is(err, persist.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, jobs.ErrNetworkBusy):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		log.Error("request failed:", err)
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

// splitNetworkPath turns /api/networks/<id>[/<action>] into its parts.
func splitNetworkPath(path string) (id, action string) {
	rest := strings.TrimPrefix(path, "/api/networks/")
	rest = strings.Trim(rest, "/")
	parts := strings.SplitN(rest, "/", 2)
	id = parts[0]
	if len(parts) == 2 {
		action = parts[1]
	}
	return id, action
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "online",
		"active_networks": s.reg.Count(),
		"training_jobs":   s.mgr.Count(),
	})
}

func (s *Server) handleTrainingStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/training/"), "/")
	if rest == "" {
		badRequest(w, "missing job id")
		return
	}
	jobID, sub := rest, ""
	if parts := strings.SplitN(rest, "/", 2); len(parts) == 2 {
		jobID, sub = parts[0], parts[1]
	}
	job, err := s.mgr.Status(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	switch sub {
	case "":
		writeJSON(w, http.StatusOK, job)
	case "history":
		s.trainingHistory(w, job)
	default:
		badRequest(w, "unknown training resource: "+sub)
	}
}

// trainingHistory plots the per-epoch accuracies recorded so far.
func (s *Server) trainingHistory(w http.ResponseWriter, job jobs.Job) {
	if len(job.History) == 0 {
		badRequest(w, "no completed epochs to plot")
		return
	}
	png, err := visual.AccuracyHistory(job.History)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":           job.ID,
		"network_id":       job.NetworkID,
		"accuracy_history": job.History,
		"plot":             encodePNG(png),
	})
}
