package eventstore

import (
	"crypto/sha256"
	"encoding/json"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/domain"
)

// canonicalRecord is the fixed-field-order projection of an IncidentEvent
// hashed and signed over. Using a dedicated struct (rather than hashing the
// domain type directly) pins the wire format independent of future
// additions to domain.IncidentEvent — an explicit schema, not an accident of
// struct layout (spec §4.1: "Canonicalization... stable field ordering...
// deterministic across implementations").
type canonicalRecord struct {
	IncidentID string    `json:"incident_id"`
	Version    uint64    `json:"version"`
	Kind       string    `json:"kind"`
	Payload    []byte    `json:"payload"`
	Timestamp  time.Time `json:"timestamp"`
	Producer   string    `json:"producer"`
}

// canonicalBytes renders the deterministic byte form of an event's
// content, prior to hashing.
func canonicalBytes(incidentID string, version uint64, kind domain.EventKind, payload []byte, ts time.Time, producer string) ([]byte, error) {
	rec := canonicalRecord{
		IncidentID: incidentID,
		Version:    version,
		Kind:       string(kind),
		Payload:    payload,
		Timestamp:  ts.UTC(),
		Producer:   producer,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "canonical encode failed")
	}
	return b, nil
}

func contentHash(canonical []byte) [32]byte {
	return sha256.Sum256(canonical)
}

func chainHash(prev [32]byte, content [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, prev[:]...)
	buf = append(buf, content[:]...)
	return sha256.Sum256(buf)
}
