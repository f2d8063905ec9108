package consensus

import (
	"context"
	"time"

	"github.com/sentinel-ir/core/pkg/domain"
	shmath "github.com/sentinel-ir/core/pkg/shared/math"
)

// Reason enumerates the Byzantine indicators named in spec §4.6.
type Reason string

const (
	ReasonImpossibleConfidence Reason = "impossible_confidence"   // (a)
	ReasonInvalidSignature     Reason = "invalid_signature"       // (b)
	ReasonConflictingMessage   Reason = "conflicting_message"     // (c)
	ReasonEvidenceInconsistent Reason = "evidence_inconsistent"   // (d)
	ReasonConfidenceOutlier    Reason = "confidence_outlier"      // (e)
)

// Flag records one detected Byzantine indicator against an agent's
// recommendation in a given round.
type Flag struct {
	AgentID string
	Reason  Reason
}

// EvidenceResolver checks whether a cited evidence reference actually
// resolves to a real record (spec §4.6(d)).
type EvidenceResolver interface {
	Resolves(ctx context.Context, ref domain.EvidenceRef) bool
}

// Verifier is the subset of the Crypto Identity Service Byzantine detection
// needs: signature verification and revocation status (spec §4.2, §4.6(b)).
type Verifier interface {
	Verify(agentID string, payload, sig []byte, claimedAt time.Time) bool
	IsRevoked(agentID string) bool
}

// detect runs rules (a)-(e) against one batch of recommendations for a
// single round, returning every flag raised. recs sharing the same AgentID
// more than once in the batch are rule (c): conflicting messages in the
// same view.
func detect(ctx context.Context, recs []domain.Recommendation, verifyPayload func(domain.Recommendation) ([]byte, bool), verifier Verifier, evidence EvidenceResolver, k float64) []Flag {
	var flags []Flag

	seen := make(map[string]int)
	for _, r := range recs {
		seen[r.AgentID]++
	}
	for id, count := range seen {
		if count > 1 {
			flags = append(flags, Flag{AgentID: id, Reason: ReasonConflictingMessage})
		}
	}

	confidences := make([]float64, 0, len(recs))
	for _, r := range recs {
		if r.Confidence >= 0 && r.Confidence <= 1 {
			confidences = append(confidences, r.Confidence)
		}
	}

	for _, r := range recs {
		if r.Confidence < 0 || r.Confidence > 1 {
			flags = append(flags, Flag{AgentID: r.AgentID, Reason: ReasonImpossibleConfidence})
			continue
		}

		if verifier.IsRevoked(r.AgentID) {
			flags = append(flags, Flag{AgentID: r.AgentID, Reason: ReasonInvalidSignature})
			continue
		}
		if payload, ok := verifyPayload(r); ok {
			if !verifier.Verify(r.AgentID, payload, r.Signature, r.Timestamp) {
				flags = append(flags, Flag{AgentID: r.AgentID, Reason: ReasonInvalidSignature})
				continue
			}
		}

		if evidence != nil {
			for _, ref := range r.Evidence {
				if !evidence.Resolves(ctx, ref) {
					flags = append(flags, Flag{AgentID: r.AgentID, Reason: ReasonEvidenceInconsistent})
					break
				}
			}
		}

		if shmath.IsOutlier(r.Confidence, confidences, k) {
			flags = append(flags, Flag{AgentID: r.AgentID, Reason: ReasonConfidenceOutlier})
		}
	}

	return flags
}
