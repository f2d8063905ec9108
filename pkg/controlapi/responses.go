package controlapi

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/domain"
)

// incidentView is the wire shape for an incident, always carrying its
// current version for optimistic concurrency (spec §6: "All responses
// include the current incident version for optimistic concurrency").
type incidentView struct {
	ID        string          `json:"id"`
	Severity  domain.Severity `json:"severity"`
	Tier      domain.Tier     `json:"tier"`
	Status    domain.Status   `json:"status"`
	Version   uint64          `json:"version"`
	MetaDepth int             `json:"meta_depth"`
}

func toIncidentView(incident domain.Incident) incidentView {
	return incidentView{
		ID:        incident.ID,
		Severity:  incident.Severity,
		Tier:      incident.Tier,
		Status:    incident.Status,
		Version:   incident.Version,
		MetaDepth: incident.MetaDepth,
	}
}

type eventView struct {
	Version   uint64          `json:"version"`
	Kind      domain.EventKind `json:"kind"`
	Producer  string          `json:"producer"`
	Timestamp string          `json:"timestamp"`
}

func toEventViews(events []domain.IncidentEvent) []eventView {
	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			Version:   e.Version,
			Kind:      e.Kind,
			Producer:  e.Producer,
			Timestamp: e.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorView is the forensic-clarity error body spec §7 requires: "the
// incident id, terminal state, and the last three events" for structural
// failures, when that context is available.
type errorView struct {
	Error      string            `json:"error"`
	Type       string            `json:"type"`
	IncidentID string            `json:"incident_id,omitempty"`
	Status     domain.Status     `json:"status,omitempty"`
	LastEvents []eventView       `json:"last_events,omitempty"`
}

// writeError maps err's AppError.StatusCode (spec §6: "0 ok, 4xx client
// errors, 409 conflict, 429 rate/budget denial, 503 insufficient quorum")
// and writes the structured body.
func writeError(w http.ResponseWriter, err error) {
	ae, ok := err.(*apperrors.AppError)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorView{Error: err.Error(), Type: "internal"})
		return
	}
	writeJSON(w, ae.StatusCode, errorView{Error: ae.Error(), Type: string(ae.Type)})
}

// writeErrorWithForensics attaches incident context to a structural failure
// per spec §7's propagation policy.
func writeErrorWithForensics(w http.ResponseWriter, err error, incident domain.Incident, events []domain.IncidentEvent) {
	ae, ok := err.(*apperrors.AppError)
	status := http.StatusInternalServerError
	kind := "internal"
	if ok {
		status = ae.StatusCode
		kind = string(ae.Type)
	}
	last := events
	if len(last) > 3 {
		last = last[len(last)-3:]
	}
	writeJSON(w, status, errorView{
		Error:      err.Error(),
		Type:       kind,
		IncidentID: incident.ID,
		Status:     incident.Status,
		LastEvents: toEventViews(last),
	})
}
