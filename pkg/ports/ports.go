// Package ports declares the narrow external-collaborator boundaries the
// core consumes (spec §1, §6): ModelInvoker, VectorMemory, TelemetrySource,
// EventSink, and ExecutorBackend, plus the outbound NotificationChannel.
// Everything on the other side of these interfaces — dashboards, demo
// generators, the RAG retrieval backend, IaC templates, paging/chat/email
// channels, doc generation — is explicitly out of scope; this package only
// pins the shape of the boundary.
package ports

import (
	"context"
	"time"
)

// ModelTier is the cost-router's declared set of LLM tiers (spec §4.4).
type ModelTier string

const (
	TierFastCheap   ModelTier = "fast_cheap"
	TierBalanced    ModelTier = "balanced"
	TierSlowAccurate ModelTier = "slow_accurate"
)

// InvocationResult is the ModelInvoker's response (spec §6).
type InvocationResult struct {
	Content          []byte
	PromptTokens     int
	CompletionTokens int
	ProviderRequestID string
}

// ModelInvoker is the outbound LLM-call boundary (spec §6).
type ModelInvoker interface {
	Invoke(ctx context.Context, tier ModelTier, prompt []byte, maxTokens int, deadline time.Time) (InvocationResult, error)
}

// MemoryHit is one VectorMemory search result (spec §6).
type MemoryHit struct {
	EntryID    string
	Similarity float64
	Payload    []byte
}

// VectorMemory is the outbound historical-pattern-lookup boundary (spec §6).
// Finite, not restartable — callers must re-issue Search for a fresh view.
type VectorMemory interface {
	Search(ctx context.Context, query []byte, topK int, minSimilarity float64) ([]MemoryHit, error)
}

// Signal is one telemetry datum pushed by the inbound TelemetrySource (spec
// §6).
type Signal struct {
	SignalID     string // per-source idempotency key
	Timestamp    time.Time
	Source       string
	SeverityHint string
	MetricMap    map[string]float64
	Tags         map[string]string
}

// TelemetrySource is the inbound signal-ingest boundary (spec §6).
type TelemetrySource interface {
	// Next blocks until a batch is available or ctx is cancelled. Returning
	// (nil, ctx.Err()) on cancellation is the cooperative-cancellation
	// contract used throughout the core (spec §5).
	Next(ctx context.Context) ([]Signal, error)
}

// EventSink is the outbound durable-persistence boundary the Event Store
// writes through (spec §6). It must preserve exactly the bytes appended —
// the Event Store's hash chain depends on byte-for-byte fidelity.
type EventSink interface {
	Append(ctx context.Context, incidentID string, canonicalEventBytes []byte) (position int64, err error)
	Read(ctx context.Context, incidentID string, fromVersion, toVersion uint64) ([][]byte, error)
	Subscribe(ctx context.Context, cursor int64) (<-chan SinkRecord, error)
}

// SinkRecord is one record yielded by EventSink.Subscribe, paired with the
// cursor position a resumed subscription should pass back in.
type SinkRecord struct {
	IncidentID string
	Bytes      []byte
	Position   int64
}

// ExecutorMetrics is the observed outcome of a sandbox step execution (spec
// §4.8, §6).
type ExecutorMetrics map[string]float64

// StepResult is the observed outcome of a production step execution.
type StepResult struct {
	Success bool
	Detail  string
}

// CredentialHandle is a just-in-time, TTL-scoped credential minted for one
// action plan (spec §4.8, glossary).
type CredentialHandle struct {
	Token     string
	ExpiresAt time.Time
}

// ExecutorBackend is the outbound sandbox/production execution boundary
// (spec §6).
type ExecutorBackend interface {
	ExecSandbox(ctx context.Context, step ActionStepView, cred CredentialHandle) (ExecutorMetrics, error)
	ExecProduction(ctx context.Context, step ActionStepView, cred CredentialHandle) (StepResult, error)
	Reverse(ctx context.Context, step ActionStepView, cred CredentialHandle) (StepResult, error)
	IssueScope(ctx context.Context, planKey string, ttl time.Duration) (CredentialHandle, error)
}

// ActionStepView is the minimal view of domain.ActionStep the executor
// backend needs, kept here (rather than importing pkg/domain) to avoid a
// dependency from the boundary-interfaces package back into the domain
// model; pkg/executor is responsible for the adaptation between the two.
type ActionStepView struct {
	Name   string
	Kind   string
	Params map[string]string
}

// DeliveryStatus is the result of a NotificationChannel.Notify call.
type DeliveryStatus struct {
	Delivered bool
	Detail    string
}

// NotificationChannel is the outbound stakeholder-notification boundary
// (spec §6). Deduplication is the core's responsibility, not the channel's.
type NotificationChannel interface {
	Notify(ctx context.Context, channelID string, payload []byte) (DeliveryStatus, error)
}
