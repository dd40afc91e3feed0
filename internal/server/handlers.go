package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-context/internal/anomaly"
	"github.com/kubilitics/kubilitics-context/internal/engine"
	"github.com/kubilitics/kubilitics-context/internal/injector"
	"github.com/kubilitics/kubilitics-context/internal/snapshot"
)

// statusResponse is returned by GET /api/v1/status.
type statusResponse struct {
	ResourceCount   int            `json:"resourceCount"`
	LastUpdate      *time.Time     `json:"lastUpdate,omitempty"`
	CountsByKind    map[string]int `json:"countsByKind"`
	ActiveAnomalies int            `json:"activeAnomalies"`
}

type anomaliesResponse struct {
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

type resourcesResponse struct {
	Resources []snapshot.Snapshot `json:"resources"`
	Count     int                 `json:"count"`
}

// chatContextRequest is the body of POST /api/v1/context/chat.
type chatContextRequest struct {
	Message string              `json:"message"`
	Query   *injector.ChatQuery `json:"query,omitempty"`
}

type chatContextResponse struct {
	Context      string `json:"context"`
	Tokens       int    `json:"tokens"`
	ProblemQuery bool   `json:"problemQuery"`
}

type summaryContextResponse struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace,omitempty"`
	Context   string `json:"context"`
}

type clusterSwitchRequest struct {
	Context string `json:"context"`
}

type clusterSwitchResponse struct {
	Context string `json:"context"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.GetStatus()
	resp := statusResponse{
		ResourceCount:   st.ResourceCount,
		CountsByKind:    s.engine.GetStore().CountByKind(),
		ActiveAnomalies: len(s.engine.GetAnomalies()),
	}
	if !st.LastUpdate.IsZero() {
		resp.LastUpdate = &st.LastUpdate
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.GetConfig())
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch engine.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.TokenBudget != nil && *patch.TokenBudget <= 0 {
		respondError(w, http.StatusBadRequest, "tokenBudget must be positive")
		return
	}
	respondJSON(w, http.StatusOK, s.engine.UpdateConfig(patch))
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, anomaliesResponse{Anomalies: s.engine.GetAnomalies()})
}

// handleResources lists stored snapshots, optionally filtered by kind,
// namespace and health.
func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("kind")
	if kind != "" && !snapshot.Supported(kind) {
		respondError(w, http.StatusBadRequest, "unsupported kind: "+kind)
		return
	}
	_, nsSet := q["namespace"]
	namespace := q.Get("namespace")
	unhealthy := false
	if raw := q.Get("unhealthy"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid unhealthy parameter")
			return
		}
		unhealthy = v
	}

	resources := s.engine.GetStore().GetByFilter(func(snap snapshot.Snapshot) bool {
		if kind != "" && snap.Kind != kind {
			return false
		}
		if nsSet && snap.Namespace != namespace {
			return false
		}
		return !unhealthy || snapshot.IsUnhealthy(snap)
	})
	if resources == nil {
		resources = []snapshot.Snapshot{}
	}
	respondJSON(w, http.StatusOK, resourcesResponse{Resources: resources, Count: len(resources)})
}

func (s *Server) handleChatContext(w http.ResponseWriter, r *http.Request) {
	var req chatContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	out := s.engine.BuildChatContext(req.Message, req.Query)
	respondJSON(w, http.StatusOK, chatContextResponse{
		Context:      out,
		Tokens:       injector.EstimateTokens(out),
		ProblemQuery: injector.IsProblemQuery(req.Message),
	})
}

func (s *Server) handleSummaryContext(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	if !snapshot.Supported(kind) {
		respondError(w, http.StatusBadRequest, "unsupported kind: "+kind)
		return
	}
	namespace := r.URL.Query().Get("namespace")
	respondJSON(w, http.StatusOK, summaryContextResponse{
		Kind:      kind,
		Namespace: namespace,
		Context:   s.engine.BuildSummaryContext(kind, namespace),
	})
}

// handleSummary returns the structured view summary, or 204 when summaries
// are disabled.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	if !snapshot.Supported(kind) {
		respondError(w, http.StatusBadRequest, "unsupported kind: "+kind)
		return
	}
	summary := s.engine.GetSummary(kind, r.URL.Query().Get("namespace"))
	if summary == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleClusterSwitch(w http.ResponseWriter, r *http.Request) {
	if s.switcher == nil {
		respondError(w, http.StatusNotImplemented, "cluster switching is not configured")
		return
	}
	var req clusterSwitchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	active, err := s.switcher(r.Context(), strings.TrimSpace(req.Context))
	if err != nil {
		s.logger.Error("Cluster switch failed", zap.String("context", req.Context), zap.Error(err))
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.logger.Info("Switched cluster", zap.String("context", active))
	respondJSON(w, http.StatusOK, clusterSwitchResponse{Context: active})
}

func (s *Server) handleClearKind(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	if !snapshot.Supported(kind) {
		respondError(w, http.StatusBadRequest, "unsupported kind: "+kind)
		return
	}
	s.engine.ClearKind(kind)
	w.WriteHeader(http.StatusNoContent)
}
