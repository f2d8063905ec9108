// Package eventstore implements the Event Store (ES, spec §4.1): an
// append-only, hash-chained, optimistically-concurrent log of
// domain.IncidentEvent records, persisted through an injected
// ports.EventSink. Grounded on the teacher's optimistic-concurrency
// (compare-and-swap on expected version) and hash-chain idioms described in
// its datastorage layer, generalized here to the incident-event domain.
package eventstore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/ports"
)

// Signer signs event bytes. Satisfied by *identity.Service; declared
// locally so eventstore does not need a hard dependency on identity's
// concrete type.
type Signer interface {
	Sign(agentID string, payload []byte) ([]byte, error)
}

// Store is the Event Store: per-incident version index plus hash chain,
// backed by a ports.EventSink for durability.
type Store struct {
	sink   ports.EventSink
	signer Signer
	now    func() time.Time

	mu     sync.Mutex // guards incidentLocks/heads map access only
	locks  map[string]*sync.Mutex
	heads  map[string]head
}

type head struct {
	version   uint64
	chainHash [32]byte
	has       bool
}

func NewStore(sink ports.EventSink, signer Signer) *Store {
	return &Store{
		sink:   sink,
		signer: signer,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
		heads:  make(map[string]head),
	}
}

// incidentLock returns the per-incident mutex, creating it on first use.
// Appends race per-incident, not globally: two different incidents append
// fully in parallel (spec §5: "no cross-incident total order required").
func (s *Store) incidentLock(incidentID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[incidentID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[incidentID] = l
	}
	return l
}

// wireRecord is what actually crosses the ports.EventSink boundary: the
// canonical bytes plus the hashes and signature computed over them, so a
// reader never has to recompute anything it cannot independently verify.
type wireRecord struct {
	Canonical   []byte    `json:"canonical"`
	ContentHash [32]byte  `json:"content_hash"`
	ChainHash   [32]byte  `json:"chain_hash"`
	Signature   []byte    `json:"signature"`
	Version     uint64    `json:"version"`
	Kind        string    `json:"kind"`
	Timestamp   time.Time `json:"timestamp"`
	Producer    string    `json:"producer"`
}

// Append computes content/chain hashes over payload, signs the record as
// producer, and persists it atomically with the version index, provided
// expectedVersion matches the incident's current head (compare-and-swap).
// On mismatch it returns an *errors.AppError of ErrorTypeConflict and
// appends nothing (spec §4.1, I1).
func (s *Store) Append(ctx context.Context, incidentID string, expectedVersion uint64, kind domain.EventKind, payload []byte, producer string) (domain.IncidentEvent, error) {
	lock := s.incidentLock(incidentID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	h := s.heads[incidentID]
	s.mu.Unlock()

	var nextVersion uint64
	var prevChain [32]byte
	if h.has {
		nextVersion = h.version + 1
		prevChain = h.chainHash
	}
	if expectedVersion != nextVersion {
		return domain.IncidentEvent{}, apperrors.NewConflictError(incidentID, nextVersion, expectedVersion)
	}

	ts := s.now()
	canonical, err := canonicalBytes(incidentID, nextVersion, kind, payload, ts, producer)
	if err != nil {
		return domain.IncidentEvent{}, err
	}
	cHash := contentHash(canonical)
	chHash := chainHash(prevChain, cHash)

	sig, err := s.signer.Sign(producer, chHash[:])
	if err != nil {
		return domain.IncidentEvent{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "event signing failed")
	}

	wire := wireRecord{
		Canonical:   canonical,
		ContentHash: cHash,
		ChainHash:   chHash,
		Signature:   sig,
		Version:     nextVersion,
		Kind:        string(kind),
		Timestamp:   ts,
		Producer:    producer,
	}
	wireBytes, err := json.Marshal(wire)
	if err != nil {
		return domain.IncidentEvent{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "wire encode failed")
	}

	// The sink call runs while holding the per-incident lock: within one
	// incident, appends are strictly serialized so the CAS against the
	// durable sink can never race (spec §5: "compare-and-swap on
	// (incident_id, expected_version)"). Different incidents never contend
	// on this lock, so the registry-wide mutex above is held only for the
	// map lookup/update, not across the sink call.
	if _, err := s.sink.Append(ctx, incidentID, wireBytes); err != nil {
		return domain.IncidentEvent{}, apperrors.Wrap(err, apperrors.ErrorTypeBackpressure, "event sink append failed")
	}

	s.mu.Lock()
	s.heads[incidentID] = head{version: nextVersion, chainHash: chHash, has: true}
	s.mu.Unlock()

	return domain.IncidentEvent{
		IncidentID:  incidentID,
		Version:     nextVersion,
		Kind:        kind,
		Payload:     payload,
		Timestamp:   ts,
		Producer:    producer,
		ContentHash: cHash,
		ChainHash:   chHash,
		Signature:   sig,
	}, nil
}

// Read returns the ordered event sequence for incidentID in
// [fromVersion, toVersion]. toVersion of 0 means "through the current head".
func (s *Store) Read(ctx context.Context, incidentID string, fromVersion, toVersion uint64) ([]domain.IncidentEvent, error) {
	raw, err := s.sink.Read(ctx, incidentID, fromVersion, toVersion)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeBackpressure, "event sink read failed")
	}
	events := make([]domain.IncidentEvent, 0, len(raw))
	for _, rb := range raw {
		var wire wireRecord
		if err := json.Unmarshal(rb, &wire); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeIntegrity, "malformed event record")
		}
		var rec canonicalRecord
		if err := json.Unmarshal(wire.Canonical, &rec); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeIntegrity, "malformed canonical payload")
		}
		events = append(events, domain.IncidentEvent{
			IncidentID:  incidentID,
			Version:     wire.Version,
			Kind:        domain.EventKind(wire.Kind),
			Payload:     rec.Payload,
			Timestamp:   wire.Timestamp,
			Producer:    wire.Producer,
			ContentHash: wire.ContentHash,
			ChainHash:   wire.ChainHash,
			Signature:   wire.Signature,
		})
	}
	return events, nil
}

// VerifyChain recomputes the hash chain for incidentID end to end and
// reports whether it is intact (spec §4.1, P2). A false return is a fatal
// integrity condition for the incident; callers surface it to the
// Meta-Health Monitor rather than retrying.
func (s *Store) VerifyChain(ctx context.Context, incidentID string) (bool, error) {
	raw, err := s.sink.Read(ctx, incidentID, 0, 0)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrorTypeBackpressure, "event sink read failed")
	}
	var prevChain [32]byte
	for i, rb := range raw {
		var wire wireRecord
		if err := json.Unmarshal(rb, &wire); err != nil {
			return false, apperrors.NewIntegrityError(incidentID)
		}
		recomputedContent := sha256.Sum256(wire.Canonical)
		if recomputedContent != wire.ContentHash {
			return false, nil
		}
		recomputedChain := chainHash(prevChain, recomputedContent)
		if recomputedChain != wire.ChainHash {
			return false, nil
		}
		if uint64(i) != wire.Version {
			return false, nil
		}
		prevChain = wire.ChainHash
	}
	return true, nil
}

// Subscribe streams events for incidentID (or "*" for all incidents)
// starting at cursor, returning a stream that stays open until ctx is
// cancelled; the caller
// passes the last-seen position back in as cursor to resume (spec §4.1).
func (s *Store) Subscribe(ctx context.Context, incidentID string, cursor int64) (<-chan domain.IncidentEvent, error) {
	raw, err := s.sink.Subscribe(ctx, cursor)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeBackpressure, "event sink subscribe failed")
	}
	out := make(chan domain.IncidentEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-raw:
				if !ok {
					return
				}
				if incidentID != "*" && rec.IncidentID != incidentID {
					continue
				}
				var wire wireRecord
				if err := json.Unmarshal(rec.Bytes, &wire); err != nil {
					continue
				}
				var crec canonicalRecord
				if err := json.Unmarshal(wire.Canonical, &crec); err != nil {
					continue
				}
				ev := domain.IncidentEvent{
					IncidentID:  rec.IncidentID,
					Version:     wire.Version,
					Kind:        domain.EventKind(wire.Kind),
					Payload:     crec.Payload,
					Timestamp:   wire.Timestamp,
					Producer:    wire.Producer,
					ContentHash: wire.ContentHash,
					ChainHash:   wire.ChainHash,
					Signature:   wire.Signature,
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// HeadVersion returns the last appended version for incidentID and whether
// any event has been appended yet — the O(1) append-concurrency check named
// in spec §6's persisted-state layout.
func (s *Store) HeadVersion(incidentID string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.heads[incidentID]
	return h.version, ok
}

