package agents

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/domain"
)

// ReputationStreamID is the dedicated event-store stream the checkpoint loop
// appends to — reputation is process-global, not per-incident, so it does
// not share an incident's event stream (spec §3: "reputation is in-memory
// with periodic durable checkpoints").
const ReputationStreamID = "_reputation"

// EventAppender is the subset of eventstore.Store the checkpoint loop needs,
// declared locally so agents does not depend on eventstore's concrete type.
type EventAppender interface {
	Append(ctx context.Context, incidentID string, expectedVersion uint64, kind domain.EventKind, payload []byte, producer string) (domain.IncidentEvent, error)
	HeadVersion(incidentID string) (uint64, bool)
}

// CheckpointPayload is the canonical shape of a REPUTATION_CHECKPOINT
// event's payload.
type CheckpointPayload struct {
	Agents map[string]domain.Agent `json:"agents"`
	At     time.Time               `json:"at"`
}

// CheckpointLoop periodically serializes the Registry's reputation table
// through an EventAppender as REPUTATION_CHECKPOINT events, until ctx is
// cancelled.
func CheckpointLoop(ctx context.Context, reg *Registry, sink EventAppender, producer string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = Checkpoint(ctx, reg, sink, producer)
		}
	}
}

// Checkpoint performs one checkpoint write immediately.
func Checkpoint(ctx context.Context, reg *Registry, sink EventAppender, producer string) error {
	snapshot := reg.Snapshot()
	payload, err := json.Marshal(CheckpointPayload{Agents: snapshot, At: time.Now().UTC()})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "reputation checkpoint encode failed")
	}

	version, has := sink.HeadVersion(ReputationStreamID)
	var expected uint64
	if has {
		expected = version + 1
	}
	_, err = sink.Append(ctx, ReputationStreamID, expected, domain.EventReputationCheckpoint, payload, producer)
	return err
}
