// Package controlapi implements the inbound ingest/control API (spec §6):
// create incident, query incident state, query event stream, trigger a
// demo scenario, and an operator-guarded Byzantine-fault chaos injection —
// routed with go-chi/chi/v5 in the style the teacher's own gateway/
// datastorage HTTP layers are tested against.
package controlapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/agents"
	"github.com/sentinel-ir/core/pkg/domain"
)

// Orchestrator is the subset of *orchestrator.Orchestrator the control API
// drives.
type Orchestrator interface {
	Open(ctx context.Context, severity domain.Severity, tier domain.Tier, parent string, metaDepth int) (domain.Incident, error)
	Current(ctx context.Context, incidentID string) (domain.Incident, error)
}

// EventReader is the subset of *eventstore.Store the control API reads
// event streams through.
type EventReader interface {
	Read(ctx context.Context, incidentID string, fromVersion, toVersion uint64) ([]domain.IncidentEvent, error)
}

// Server wires the control-API HTTP surface to the orchestrator, event
// store, and agent runtime.
type Server struct {
	Orch      Orchestrator
	Events    EventReader
	Runtime   *agents.Runtime
	Scenarios map[string]DemoScenario
	router    chi.Router
}

// DemoScenario is a named, literal-valued incident seed a dashboard can
// trigger without composing a real telemetry batch (spec §6: "trigger a
// demo scenario by id"; literal values grounded in spec §8's end-to-end
// scenarios).
type DemoScenario struct {
	Severity domain.Severity
	Tier     domain.Tier
}

// DefaultScenarios are the three named end-to-end scenarios from spec §8.
func DefaultScenarios() map[string]DemoScenario {
	return map[string]DemoScenario{
		"database-cascade": {Severity: domain.SeverityCritical, Tier: domain.Tier1},
		"byzantine-agent":  {Severity: domain.SeverityHigh, Tier: domain.Tier2},
		"partial-outage":   {Severity: domain.SeverityHigh, Tier: domain.Tier2},
	}
}

// NewServer builds the router. Pass orch and events as the same
// *eventstore.Store/*orchestrator.Orchestrator pair the composition root
// wires everything else to.
func NewServer(orch Orchestrator, events EventReader, runtime *agents.Runtime, scenarios map[string]DemoScenario) *Server {
	s := &Server{Orch: orch, Events: events, Runtime: runtime, Scenarios: scenarios}
	s.router = s.newRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/incidents", s.handleCreateIncident)
		r.Get("/incidents/{incidentID}", s.handleGetIncident)
		r.Get("/incidents/{incidentID}/events", s.handleGetEvents)
		r.Post("/demo/{scenarioID}", s.handleTriggerDemo)
		r.Post("/incidents/{incidentID}/chaos/byzantine", requireOperator(s.handleInjectChaos))
	})
	return r
}

type createIncidentRequest struct {
	Severity domain.Severity `json:"severity"`
	Tier     domain.Tier     `json:"tier"`
}

func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req createIncidentRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Severity == "" {
		req.Severity = domain.SeverityMedium
	}
	if req.Tier == 0 {
		req.Tier = domain.Tier2
	}

	incident, err := s.Orch.Open(r.Context(), req.Severity, req.Tier, "", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIncidentView(incident))
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")
	incident, err := s.Orch.Current(r.Context(), incidentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if incident.ID == "" {
		writeError(w, apperrors.NewNotFoundError("incident "+incidentID))
		return
	}
	if incident.Status == domain.StatusFailed {
		events, eventsErr := s.Events.Read(r.Context(), incidentID, 0, 0)
		if eventsErr != nil {
			events = nil
		}
		writeErrorWithForensics(w, apperrors.Newf(apperrors.ErrorTypeQuorum, "incident %s terminated in FAILED", incidentID), incident, events)
		return
	}
	writeJSON(w, http.StatusOK, toIncidentView(incident))
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")
	events, err := s.Events.Read(r.Context(), incidentID, 0, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventViews(events))
}

func (s *Server) handleTriggerDemo(w http.ResponseWriter, r *http.Request) {
	scenarioID := chi.URLParam(r, "scenarioID")
	scenario, ok := s.Scenarios[scenarioID]
	if !ok {
		writeError(w, apperrors.NewNotFoundError("demo scenario "+scenarioID))
		return
	}
	incident, err := s.Orch.Open(r.Context(), scenario.Severity, scenario.Tier, "", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIncidentView(incident))
}

type injectChaosRequest struct {
	AgentID            string   `json:"agent_id"`
	OverrideConfidence *float64 `json:"override_confidence,omitempty"`
	ForgeSignature     bool     `json:"forge_signature"`
}

func (s *Server) handleInjectChaos(w http.ResponseWriter, r *http.Request) {
	var req injectChaosRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "invalid chaos injection request body"))
		return
	}
	if req.AgentID == "" {
		writeError(w, apperrors.New(apperrors.ErrorTypeValidation, "agent_id is required"))
		return
	}
	if s.Runtime == nil {
		writeError(w, apperrors.New(apperrors.ErrorTypeInternal, "agent runtime not wired"))
		return
	}

	fault := domain.ByzantineFault{OverrideConfidence: req.OverrideConfidence, ForgeSignature: req.ForgeSignature}
	if err := s.Runtime.InjectFault(req.AgentID, fault); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agent_id": req.AgentID, "status": "fault injected"})
}
