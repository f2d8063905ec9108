package consensus

import (
	"github.com/sentinel-ir/core/pkg/agents"
	"github.com/sentinel-ir/core/pkg/domain"
)

// DefaultHasher reproduces, byte-for-byte, the digest agents.Worker.sign
// took a recommendation's signature over — the canonical form the
// Consensus Engine's ingress verification must check signatures against.
func DefaultHasher(rec domain.Recommendation) ([]byte, bool) {
	digest, err := agents.RecommendationDigest(rec)
	if err != nil {
		return nil, false
	}
	return digest[:], true
}
