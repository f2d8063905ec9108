// Package consensus implements the Consensus Engine (CE, spec §4.6): a
// modified PBFT over per-(incident, round) batches of agent Recommendations,
// tolerating f = (n-1)/3 Byzantine agents out of n. Because every agent in
// this core is a worker hosted in the same process (spec §4.5, Agent
// Runtime), and the Crypto Identity Service holds every agent's signing key
// in that one process's memory (spec §4.2), the PBFT message exchange is
// simulated locally rather than over a network transport: pre-prepare is the
// engine collecting submissions within the window, prepare/commit are the
// engine verifying and counting signed votes on each contributing agent's
// behalf. The safety properties — quorum size, signature verification,
// Byzantine detection, weighted-vote outcome selection — hold regardless of
// transport.
package consensus

import "time"

// Config configures one deployment's consensus timing and detection
// sensitivity (spec §6: consensus.submission_window_ms,
// consensus.prepare_timeout_ms, consensus.commit_timeout_ms,
// consensus.outlier_k).
type Config struct {
	SubmissionWindow time.Duration // Twin
	PrepareTimeout   time.Duration
	CommitTimeout    time.Duration
	OutlierK         float64 // k in spec §4.6(e): "confidence outlier > k*MAD from the pack"
}

func DefaultConfig() Config {
	return Config{
		SubmissionWindow: 2 * time.Second,
		PrepareTimeout:   time.Second,
		CommitTimeout:    time.Second,
		OutlierK:         3.0,
	}
}

// F returns the maximum tolerated Byzantine agents for a set of size n
// (spec §4.6: "f = (n-1)/3").
func F(n int) int {
	if n <= 0 {
		return 0
	}
	return (n - 1) / 3
}

// Quorum returns the minimum distinct-agent count required for the
// quorum proofs this package produces (spec I2: "≥ 2f+1 valid commit
// signatures from distinct agents").
func Quorum(n int) int {
	return 2*F(n) + 1
}
