// Package vectormemory implements ports.VectorMemory: a finite,
// non-restartable historical-pattern lookup (spec §6) scored by cosine
// similarity (pkg/shared/math), the same similarity metric the teacher's
// pgvector-backed store is tested against in its integration suite. This
// in-memory adapter stands in for a real pgvector/embedding-index backend in
// tests and small deployments; Search never mutates the store.
package vectormemory

import (
	"context"
	"sort"
	"sync"

	shmath "github.com/sentinel-ir/core/pkg/shared/math"

	"github.com/sentinel-ir/core/pkg/ports"
)

// Entry is one stored historical pattern: an embedding vector plus its
// opaque payload (e.g. a serialized prior incident summary).
type Entry struct {
	ID        string
	Embedding []float64
	Payload   []byte
}

// Store is an in-memory VectorMemory. Safe for concurrent Search and Upsert.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]Entry)}
}

// Upsert adds or replaces entry by ID.
func (s *Store) Upsert(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
}

// Delete removes entry id, if present.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Exists reports whether id names a stored entry, grounding
// consensus.EvidenceResolver's "does this cited evidence actually resolve"
// check (spec §4.6(d)) for memory-kind evidence references.
func (s *Store) Exists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// Search returns up to topK entries whose cosine similarity to query is at
// least minSimilarity, ordered by descending similarity (spec §6:
// VectorMemory.Search(query, topK, minSimilarity)). A cancelled ctx is
// honored even though no I/O occurs, consistent with the cooperative
// cancellation contract every port call makes.
func (s *Store) Search(ctx context.Context, query []byte, topK int, minSimilarity float64) ([]ports.MemoryHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec, err := decodeEmbedding(query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]ports.MemoryHit, 0, len(s.entries))
	for _, e := range s.entries {
		sim := shmath.CosineSimilarity(vec, e.Embedding)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, ports.MemoryHit{EntryID: e.ID, Similarity: sim, Payload: e.Payload})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].EntryID < hits[j].EntryID
	})

	if topK >= 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
