package eventstore

import (
	"context"
	"sync"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/ports"
)

// MemSink is the one illustrative ports.EventSink the core ships: an
// in-process, non-durable log. Production durability is an injected
// concern the core does not itself guarantee (spec §1 Non-goals); this
// adapter exists so the Event Store is testable and the composition root
// has something to wire by default.
type MemSink struct {
	mu       sync.Mutex
	records  []storedRecord
	subs     []chan ports.SinkRecord
	capacity int // bounded subscriber channel capacity; full subscribers block the publisher (spec §5 backpressure)
}

type storedRecord struct {
	incidentID string
	bytes      []byte
}

func NewMemSink() *MemSink {
	return &MemSink{capacity: 256}
}

func (m *MemSink) Append(ctx context.Context, incidentID string, canonicalEventBytes []byte) (int64, error) {
	// Preserve exactly the bytes appended (spec §6): copy defensively so a
	// caller mutating its buffer afterward cannot corrupt the stored record.
	stored := append([]byte(nil), canonicalEventBytes...)

	m.mu.Lock()
	m.records = append(m.records, storedRecord{incidentID: incidentID, bytes: stored})
	position := int64(len(m.records) - 1)
	subs := append([]chan ports.SinkRecord(nil), m.subs...)
	m.mu.Unlock()

	rec := ports.SinkRecord{IncidentID: incidentID, Bytes: stored, Position: position}
	for _, ch := range subs {
		select {
		case ch <- rec:
		case <-ctx.Done():
			return position, ctx.Err()
		}
	}
	return position, nil
}

func (m *MemSink) Read(ctx context.Context, incidentID string, fromVersion, toVersion uint64) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, 0)
	var v uint64
	for _, r := range m.records {
		if r.incidentID != incidentID {
			continue
		}
		if v >= fromVersion && (toVersion == 0 || v <= toVersion) {
			out = append(out, r.bytes)
		}
		v++
	}
	return out, nil
}

func (m *MemSink) Subscribe(ctx context.Context, cursor int64) (<-chan ports.SinkRecord, error) {
	if cursor < 0 {
		return nil, apperrors.New(apperrors.ErrorTypeValidation, "cursor must be >= 0")
	}
	ch := make(chan ports.SinkRecord, m.capacity)

	m.mu.Lock()
	// Replay anything already committed at or after cursor before joining
	// live fan-out, so a resumed subscription never misses a record (spec
	// §4.1: "restartable from cursor").
	backlog := make([]ports.SinkRecord, 0)
	for i := cursor; i < int64(len(m.records)); i++ {
		backlog = append(backlog, ports.SinkRecord{
			IncidentID: m.records[i].incidentID,
			Bytes:      m.records[i].bytes,
			Position:   i,
		})
	}
	m.subs = append(m.subs, ch)
	m.mu.Unlock()

	go func() {
		for _, rec := range backlog {
			select {
			case ch <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, c := range m.subs {
			if c == ch {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// MutateByteForTest flips one byte of the version-th record stored for
// incidentID, simulating tamper for chain-integrity tests (spec §8 scenario 6).
// Test-only; exported so pkg/eventstore's own suite and integration suites
// in other packages can exercise tamper detection without a sink-specific
// backdoor of their own.
func (m *MemSink) MutateByteForTest(incidentID string, version uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v uint64
	for i, r := range m.records {
		if r.incidentID != incidentID {
			continue
		}
		if v == version {
			if len(r.bytes) < 16 {
				return false
			}
			// Flip the middle byte of the stored record. XOR 0xFF turns it
			// into a non-ASCII byte, so the record no longer decodes: Read
			// fails and VerifyChain reports an integrity error.
			mutated := append([]byte(nil), r.bytes...)
			mid := len(mutated) / 2
			mutated[mid] ^= 0xFF
			m.records[i].bytes = mutated
			return true
		}
		v++
	}
	return false
}
