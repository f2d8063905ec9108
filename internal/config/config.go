// Package config loads the configuration surface referenced throughout
// spec §6 (quorum.*, consensus.*, breaker.*, budget.*, ratelimit.*,
// reputation.*, executor.*, mhm.*) from YAML, with environment-variable
// overrides for secrets/endpoints and fsnotify-driven hot reload for the
// non-structural knobs (timeouts, thresholds) — mirroring the teacher's own
// internal/config + fsnotify pairing.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/sentinel-ir/core/internal/errors"
	"github.com/sentinel-ir/core/pkg/agents"
	"github.com/sentinel-ir/core/pkg/breaker"
	"github.com/sentinel-ir/core/pkg/consensus"
	"github.com/sentinel-ir/core/pkg/meta"
	"github.com/sentinel-ir/core/pkg/ratelimit"
)

// ConsensusConfig mirrors consensus.Config with YAML tags (spec §6:
// consensus.submission_window_ms, consensus.prepare_timeout_ms,
// consensus.commit_timeout_ms, consensus.outlier_k).
type ConsensusConfig struct {
	SubmissionWindowMS int     `yaml:"submission_window_ms"`
	PrepareTimeoutMS   int     `yaml:"prepare_timeout_ms"`
	CommitTimeoutMS    int     `yaml:"commit_timeout_ms"`
	OutlierK           float64 `yaml:"outlier_k"`
}

func (c ConsensusConfig) toDomain() consensus.Config {
	d := consensus.DefaultConfig()
	if c.SubmissionWindowMS > 0 {
		d.SubmissionWindow = time.Duration(c.SubmissionWindowMS) * time.Millisecond
	}
	if c.PrepareTimeoutMS > 0 {
		d.PrepareTimeout = time.Duration(c.PrepareTimeoutMS) * time.Millisecond
	}
	if c.CommitTimeoutMS > 0 {
		d.CommitTimeout = time.Duration(c.CommitTimeoutMS) * time.Millisecond
	}
	if c.OutlierK > 0 {
		d.OutlierK = c.OutlierK
	}
	return d
}

// BreakerConfig mirrors breaker.Config (spec §6: breaker.failure_threshold,
// breaker.window_ms, breaker.cooldown_ms, breaker.halfopen_probes).
type BreakerConfig struct {
	FailureThreshold int     `yaml:"failure_threshold"`
	FailureRate      float64 `yaml:"failure_rate"`
	WindowMS         int     `yaml:"window_ms"`
	CooldownMS       int     `yaml:"cooldown_ms"`
	HalfOpenProbes   int     `yaml:"halfopen_probes"`
}

func (b BreakerConfig) toDomain() breaker.Config {
	d := breaker.DefaultConfig()
	if b.FailureThreshold > 0 {
		d.FailureThreshold = uint32(b.FailureThreshold)
	}
	if b.FailureRate > 0 {
		d.FailureRate = b.FailureRate
	}
	if b.WindowMS > 0 {
		d.Window = time.Duration(b.WindowMS) * time.Millisecond
	}
	if b.CooldownMS > 0 {
		d.Cooldown = time.Duration(b.CooldownMS) * time.Millisecond
	}
	if b.HalfOpenProbes > 0 {
		d.HalfOpenProbes = uint32(b.HalfOpenProbes)
	}
	return d
}

// BudgetConfig configures one cost envelope (spec §3: hourly/daily budget
// caps).
type BudgetConfig struct {
	HourlyCap float64 `yaml:"hourly_cap"`
	DailyCap  float64 `yaml:"daily_cap"`
}

// RateLimitConfig mirrors ratelimit.Limits per dependency (spec §6:
// ratelimit.{dep}.rps, ratelimit.{dep}.burst).
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func (r RateLimitConfig) toDomain(fallback ratelimit.Limits) ratelimit.Limits {
	l := fallback
	if r.RPS > 0 {
		l.RPS = r.RPS
	}
	if r.Burst > 0 {
		l.Burst = r.Burst
	}
	return l
}

// ReputationConfig mirrors agents.ReputationConfig (spec §6:
// reputation.delta_reward, reputation.delta_penalty,
// reputation.quarantine_threshold).
type ReputationConfig struct {
	DeltaReward         float64 `yaml:"delta_reward"`
	DeltaPenalty        float64 `yaml:"delta_penalty"`
	ProbationThreshold  float64 `yaml:"probation_threshold"`
	QuarantineThreshold float64 `yaml:"quarantine_threshold"`
}

func (r ReputationConfig) toDomain() agents.ReputationConfig {
	d := agents.DefaultReputationConfig()
	if r.DeltaReward > 0 {
		d.DeltaReward = r.DeltaReward
	}
	if r.DeltaPenalty > 0 {
		d.DeltaPenalty = r.DeltaPenalty
	}
	if r.ProbationThreshold > 0 {
		d.ProbationThreshold = r.ProbationThreshold
	}
	if r.QuarantineThreshold > 0 {
		d.QuarantineThreshold = r.QuarantineThreshold
	}
	return d
}

// ExecutorConfig configures the Resolution Executor's default windows
// (spec §6: executor.sandbox_window_ms, executor.observation_window_ms).
type ExecutorConfig struct {
	SandboxWindowMS     int `yaml:"sandbox_window_ms"`
	ObservationWindowMS int `yaml:"observation_window_ms"`
	// MaxRounds bounds the analysis/consensus/execution retry loop a
	// sandbox/policy rejection re-enters (spec §8 scenario 5: "bounded
	// retry"); a plumbing failure never retries regardless of this value.
	MaxRounds int `yaml:"max_rounds"`
}

// MHMConfig mirrors meta.Thresholds plus the meta-incident recursion bound
// (spec §6: mhm.degraded_threshold, mhm.critical_threshold,
// mhm.max_meta_depth; SPEC_FULL §3).
type MHMConfig struct {
	DegradedAgentFailureRate     float64       `yaml:"degraded_agent_failure_rate"`
	CriticalAgentFailureRate     float64       `yaml:"critical_agent_failure_rate"`
	DegradedConsensusFailureRate float64       `yaml:"degraded_consensus_failure_rate"`
	CriticalConsensusFailureRate float64       `yaml:"critical_consensus_failure_rate"`
	MaxMetaDepth                 int           `yaml:"max_meta_depth"`
	CadenceMS                    int           `yaml:"cadence_ms"`
	Cadence                      time.Duration `yaml:"-"`
	// EscalationTimeoutMS bounds how long a meta-incident may stay
	// unresolved since its first CRITICAL assessment before
	// HUMAN_TAKEOVER_REQUIRED fires (spec §4.7: Tesc).
	EscalationTimeoutMS int           `yaml:"escalation_timeout_ms"`
	EscalationTimeout   time.Duration `yaml:"-"`
}

func (m MHMConfig) toDomain() meta.Thresholds {
	d := meta.DefaultThresholds()
	if m.DegradedAgentFailureRate > 0 {
		d.DegradedAgentFailureRate = m.DegradedAgentFailureRate
	}
	if m.CriticalAgentFailureRate > 0 {
		d.CriticalAgentFailureRate = m.CriticalAgentFailureRate
	}
	if m.DegradedConsensusFailureRate > 0 {
		d.DegradedConsensusFailureRate = m.DegradedConsensusFailureRate
	}
	if m.CriticalConsensusFailureRate > 0 {
		d.CriticalConsensusFailureRate = m.CriticalConsensusFailureRate
	}
	return d
}

// QuorumConfig exposes the f = (n-1)/3 / 2f+1 arithmetic as a pass-through
// block; the formula itself is fixed (spec I2), but the field keeps the
// config surface matching spec §6's named key (quorum.min_agents) for the
// smallest declared-agent-set size the deployment will ever run with.
type QuorumConfig struct {
	MinAgents int `yaml:"min_agents"`
}

// ServerConfig configures the control-API listener (kubernaut's own
// server.webhook_port / server.metrics_port naming, carried forward).
type ServerConfig struct {
	ListenPort  string `yaml:"listen_port"`
	MetricsPort string `yaml:"metrics_port"`
}

// LoggingConfig configures the zap logger (kubernaut's logging.level /
// logging.format).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RedisConfig configures the telemetry deduper's backing store.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// SlackConfig configures the notification channel.
type SlackConfig struct {
	ChannelID string `yaml:"channel_id"`
	// Token is never read from YAML — spec §6 requires secrets to come from
	// the environment, never a committed config file. Set via
	// SENTINEL_SLACK_TOKEN.
	Token string `yaml:"-"`
}

// Config is the full process configuration surface.
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Logging    LoggingConfig              `yaml:"logging"`
	Quorum     QuorumConfig               `yaml:"quorum"`
	Consensus  ConsensusConfig            `yaml:"consensus"`
	Breaker    map[string]BreakerConfig   `yaml:"breaker"`
	Budget     map[string]BudgetConfig    `yaml:"budget"`
	RateLimit  map[string]RateLimitConfig `yaml:"ratelimit"`
	Reputation ReputationConfig           `yaml:"reputation"`
	Executor   ExecutorConfig             `yaml:"executor"`
	MHM        MHMConfig                  `yaml:"mhm"`
	Redis      RedisConfig                `yaml:"redis"`
	Slack      SlackConfig                `yaml:"slack"`
}

// Load reads path, applies defaults for any zero-valued structural field,
// overlays environment-variable secrets, and validates the result (spec §6).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to read config file")
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to parse config file")
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenPort == "" {
		cfg.Server.ListenPort = "8080"
	}
	if cfg.Server.MetricsPort == "" {
		cfg.Server.MetricsPort = "9090"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Quorum.MinAgents == 0 {
		cfg.Quorum.MinAgents = 4
	}
	if cfg.Executor.SandboxWindowMS == 0 {
		cfg.Executor.SandboxWindowMS = 30_000
	}
	if cfg.Executor.ObservationWindowMS == 0 {
		cfg.Executor.ObservationWindowMS = 5 * 60_000
	}
	if cfg.Executor.MaxRounds == 0 {
		cfg.Executor.MaxRounds = 3
	}
	if cfg.MHM.MaxMetaDepth == 0 {
		cfg.MHM.MaxMetaDepth = 2
	}
	if cfg.MHM.CadenceMS == 0 {
		cfg.MHM.CadenceMS = 10_000
	}
	cfg.MHM.Cadence = time.Duration(cfg.MHM.CadenceMS) * time.Millisecond
	if cfg.MHM.EscalationTimeoutMS == 0 {
		cfg.MHM.EscalationTimeoutMS = 15 * 60_000
	}
	cfg.MHM.EscalationTimeout = time.Duration(cfg.MHM.EscalationTimeoutMS) * time.Millisecond
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
}

// applyEnvOverrides overlays secrets and per-deployment endpoints that must
// never live in a committed YAML file (spec §6: "secrets never read from
// disk-committed config").
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SENTINEL_SLACK_TOKEN"); v != "" {
		cfg.Slack.Token = v
	}
	if v := os.Getenv("SENTINEL_SLACK_CHANNEL"); v != "" {
		cfg.Slack.ChannelID = v
	}
	if v := os.Getenv("SENTINEL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SENTINEL_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_QUORUM_MIN_AGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Quorum.MinAgents = n
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Quorum.MinAgents < 1 {
		return apperrors.New(apperrors.ErrorTypeValidation, "quorum.min_agents must be >= 1")
	}
	if cfg.Consensus.OutlierK < 0 {
		return apperrors.New(apperrors.ErrorTypeValidation, "consensus.outlier_k must be >= 0")
	}
	if cfg.MHM.MaxMetaDepth < 0 {
		return apperrors.New(apperrors.ErrorTypeValidation, "mhm.max_meta_depth must be >= 0")
	}
	for dep, b := range cfg.Breaker {
		if b.FailureRate < 0 || b.FailureRate > 1 {
			return apperrors.Newf(apperrors.ErrorTypeValidation, "breaker.%s.failure_rate must be between 0.0 and 1.0", dep)
		}
	}
	for dep, r := range cfg.RateLimit {
		if r.RPS < 0 {
			return apperrors.Newf(apperrors.ErrorTypeValidation, "ratelimit.%s.rps must be >= 0", dep)
		}
	}
	return nil
}

// ConsensusEngineConfig converts the YAML block to the consensus package's own
// Config, falling back to consensus.DefaultConfig for any zero field.
func (c *Config) ConsensusEngineConfig() consensus.Config {
	return c.Consensus.toDomain()
}

// BreakerConfigFor returns the breaker.Config for dependency, falling back
// to breaker.DefaultConfig when the deployment declares no override.
func (c *Config) BreakerConfigFor(dependency string) breaker.Config {
	if b, ok := c.Breaker[dependency]; ok {
		return b.toDomain()
	}
	return breaker.DefaultConfig()
}

// RateLimitFor returns the ratelimit.Limits for dependency, falling back to
// fallback when undeclared.
func (c *Config) RateLimitFor(dependency string, fallback ratelimit.Limits) ratelimit.Limits {
	if r, ok := c.RateLimit[dependency]; ok {
		return r.toDomain(fallback)
	}
	return fallback
}

// ReputationConfig converts the YAML block to agents.ReputationConfig.
func (c *Config) ReputationConfig() agents.ReputationConfig {
	return c.Reputation.toDomain()
}

// MHMThresholds converts the YAML block to meta.Thresholds.
func (c *Config) MHMThresholds() meta.Thresholds {
	return c.MHM.toDomain()
}

// SandboxWindow and ObservationWindow expose the executor's configured
// durations.
func (c *Config) SandboxWindow() time.Duration {
	return time.Duration(c.Executor.SandboxWindowMS) * time.Millisecond
}

func (c *Config) ObservationWindow() time.Duration {
	return time.Duration(c.Executor.ObservationWindowMS) * time.Millisecond
}

// MaxAnalysisRounds bounds the analysis/consensus/execution retry loop
// (spec §8 scenario 5: "sandbox rejection with bounded retry").
func (c *Config) MaxAnalysisRounds() int {
	return c.Executor.MaxRounds
}
