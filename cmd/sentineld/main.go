// Command sentineld is the composition root for the incident-response
// core: it loads configuration, wires every package's concrete
// implementation together by hand (spec §9: "no ambient globals; every
// collaborator is constructed and passed explicitly"), and serves the
// control API until told to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	apperrors "github.com/sentinel-ir/core/internal/errors"

	"github.com/sentinel-ir/core/internal/config"
	"github.com/sentinel-ir/core/pkg/agents"
	"github.com/sentinel-ir/core/pkg/breaker"
	"github.com/sentinel-ir/core/pkg/consensus"
	"github.com/sentinel-ir/core/pkg/controlapi"
	"github.com/sentinel-ir/core/pkg/costrouter"
	"github.com/sentinel-ir/core/pkg/domain"
	"github.com/sentinel-ir/core/pkg/eventstore"
	"github.com/sentinel-ir/core/pkg/executor"
	"github.com/sentinel-ir/core/pkg/identity"
	"github.com/sentinel-ir/core/pkg/meta"
	"github.com/sentinel-ir/core/pkg/model"
	"github.com/sentinel-ir/core/pkg/notify"
	"github.com/sentinel-ir/core/pkg/orchestrator"
	"github.com/sentinel-ir/core/pkg/policy"
	"github.com/sentinel-ir/core/pkg/ports"
	"github.com/sentinel-ir/core/pkg/ratelimit"
	"github.com/sentinel-ir/core/pkg/sandbox"
	"github.com/sentinel-ir/core/pkg/vectormemory"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sentineld",
	Short:   "Multi-agent, Byzantine-tolerant incident-response core",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("sentineld %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("config", "config.yaml", "path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API and agent runtime until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		return runServe(configPath)
	},
}

// noopNotificationChannel satisfies ports.NotificationChannel when no Slack
// token is configured, so the Communication agent's delivery path still
// runs end-to-end in a demo deployment instead of being left nil.
type noopNotificationChannel struct{ logger *zap.Logger }

func (c noopNotificationChannel) Notify(ctx context.Context, channelID string, payload []byte) (ports.DeliveryStatus, error) {
	c.logger.Info("notification suppressed: no delivery channel configured", zap.String("channel_id", channelID))
	return ports.DeliveryStatus{Delivered: false, Detail: "no channel configured"}, nil
}

// memoryEvidenceResolver grounds Byzantine detection rule (d) (spec
// §4.6(d): cited evidence must resolve to a real record) against the
// historical-pattern vector store for memory-kind evidence; event and
// telemetry references are resolved upstream by the event store and
// ingestion pipeline respectively and are treated as always-valid here.
type memoryEvidenceResolver struct {
	memory *vectormemory.Store
}

func (r memoryEvidenceResolver) Resolves(ctx context.Context, ref domain.EvidenceRef) bool {
	if ref.Kind == "memory" {
		return r.memory.Exists(ref.ID)
	}
	return true
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// rolePromptBuilder renders a role-tagged, job-grounded prompt. Each of the
// five roles shares the wire contract pkg/agents.llmResponse expects; they
// differ only in the instruction text and what they emphasize from the
// retrieved memory hits (spec §4.5).
func rolePromptBuilder(role domain.Role) func(job agents.Job, hits []ports.MemoryHit) []byte {
	instruction := map[domain.Role]string{
		domain.RoleDetection:     "Determine whether the supplied signal indicates an active incident and classify it.",
		domain.RoleDiagnosis:     "Diagnose the likely root cause given the incident context and historical matches.",
		domain.RolePrediction:    "Predict how the incident will evolve if no action is taken.",
		domain.RoleResolution:    "Propose a minimal, reversible remediation action plan.",
		domain.RoleCommunication: "Summarize the incident status for a human stakeholder audience.",
	}[role]

	return func(job agents.Job, hits []ports.MemoryHit) []byte {
		prompt := fmt.Sprintf(
			"role=%s\ninstruction=%s\nincident_id=%s\nround=%d\nmemory_hits=%d\ninput=%s\n",
			role, instruction, job.IncidentID, job.Round, len(hits), string(job.Input),
		)
		return []byte(prompt)
	}
}

// analysisRoles is the subset of domain.Roles that produce pre-consensus
// recommendations (spec §4.5, §4.9); Resolution acts only after a decision
// commits and Communication only after it resolves, so neither is fanned out
// during analysis.
var analysisRoles = []domain.Role{domain.RoleDetection, domain.RoleDiagnosis, domain.RolePrediction}

// defaultCausalGraph seeds the Diagnosis role's bounded graph walk. A real
// deployment would derive this from topology/dependency discovery; no such
// feed is wired into this core yet, so every incident walks the same empty
// graph and falls straight through to the LLM-sourced evidence.
func defaultCausalGraph() *agents.CausalGraph {
	return agents.NewCausalGraph(map[string][]string{})
}

// defaultCascadeSignals is a placeholder telemetry-trend feed for the
// Prediction role's cascade forecast: a single flat reading, since no
// sliding-window telemetry source is wired into this core yet.
func defaultCascadeSignals(job agents.Job) []agents.SignalSample {
	return []agents.SignalSample{{MinutesAgo: 0, Intensity: 1.0}}
}

// agentRoster spreads n agent instances evenly across the five fixed roles,
// e.g. n=4 yields one Detection/Diagnosis/Prediction/Resolution instance and
// no Communication instance for the smallest declared-agent-set size (spec
// §6: quorum.min_agents); n scaled up fills every role before doubling any.
func agentRoster(n int) []domain.Agent {
	if n < 1 {
		n = 1
	}
	roster := make([]domain.Agent, 0, n)
	for i := 0; len(roster) < n; i++ {
		role := domain.Roles[i%len(domain.Roles)]
		instance := i/len(domain.Roles) + 1
		roster = append(roster, domain.Agent{
			ID:         fmt.Sprintf("%s-%d", role, instance),
			Role:       role,
			Reputation: 0.5,
			State:      domain.AgentHealthy,
		})
	}
	return roster
}

// costRouterFor builds the cost router over a fresh hourly/daily envelope
// pair (spec §3: per-time-window budgets).
func costRouterFor(hourlyCap, dailyCap float64) *costrouter.Router {
	hourly := costrouter.NewEnvelope(hourlyCap, time.Hour)
	daily := costrouter.NewEnvelope(dailyCap, 24*time.Hour)
	return costrouter.NewRouter(costrouter.DefaultProfiles(), hourly, daily)
}

func buildModelInvokers(logger *zap.Logger) map[ports.ModelTier]ports.ModelInvoker {
	invoker := func() ports.ModelInvoker {
		if key := os.Getenv("SENTINEL_ANTHROPIC_API_KEY"); key != "" {
			logger.Info("using Anthropic model invoker")
			return model.NewAnthropicInvoker(key, model.DefaultAnthropicModels())
		}
		if region := os.Getenv("SENTINEL_BEDROCK_REGION"); region != "" {
			bi, err := model.NewBedrockInvoker(context.Background(), region, model.DefaultBedrockModels())
			if err == nil {
				logger.Info("using Bedrock model invoker", zap.String("region", region))
				return bi
			}
			logger.Warn("failed to construct Bedrock invoker, falling back to mock", zap.Error(err))
		}
		logger.Warn("no LLM provider credentials configured, using mock invoker")
		return model.NewMockInvoker()
	}()

	return map[ports.ModelTier]ports.ModelInvoker{
		ports.TierFastCheap:    invoker,
		ports.TierBalanced:     invoker,
		ports.TierSlowAccurate: invoker,
	}
}

// pipelineDriver wraps *orchestrator.Orchestrator so that opening an
// incident through the control API also drives it through analysis,
// consensus, and execution in the background, instead of leaving the
// control API able only to open incidents and never advance them (spec
// §4.9's full state machine run end to end for every incident the API
// creates).
type pipelineDriver struct {
	orch       *orchestrator.Orchestrator
	cfg        *config.Config
	logger     *zap.Logger
	escalation *meta.EscalationTracker
	openMeta   sync.Map // incidentID string -> struct{}, meta-incidents under escalation watch
}

func (d *pipelineDriver) Open(ctx context.Context, severity domain.Severity, tier domain.Tier, parent string, metaDepth int) (domain.Incident, error) {
	incident, err := d.orch.Open(ctx, severity, tier, parent, metaDepth)
	if err != nil {
		return incident, err
	}
	go d.run(incident.ID, false)
	return incident, nil
}

func (d *pipelineDriver) Current(ctx context.Context, incidentID string) (domain.Incident, error) {
	return d.orch.Current(ctx, incidentID)
}

// run drives one incident through a bounded number of analysis/consensus/
// execution rounds (spec §8 scenario 5: "sandbox rejection with bounded
// retry"). A sandbox/policy rejection (ErrorTypeValidation) re-enters the
// loop for another round; any other execution error is a plumbing failure
// and aborts immediately without consuming further rounds. restrictedOnly
// gates the committed decision to the closed self-healing action set, the
// meta-incident pipeline's own constraint (spec §4.7).
func (d *pipelineDriver) run(incidentID string, restrictedOnly bool) {
	ctx := context.Background()
	log := d.logger.With(zap.String("incident_id", incidentID))

	maxRounds := d.cfg.MaxAnalysisRounds()
	if maxRounds < 1 {
		maxRounds = 1
	}

	for round := uint64(1); round <= uint64(maxRounds); round++ {
		if err := d.orch.RunAnalysis(ctx, incidentID, round, analysisRoles, []byte(incidentID), d.cfg.SandboxWindow()); err != nil {
			log.Error("analysis phase failed", zap.Error(err), zap.Uint64("round", round))
			return
		}

		decision, err := d.orch.RunConsensus(ctx, incidentID, round, d.cfg.Quorum.MinAgents)
		if err != nil {
			log.Warn("consensus phase did not commit a decision", zap.Error(err), zap.Uint64("round", round))
			return
		}

		if restrictedOnly && !meta.IsRestrictedAction(decision.Action.Key) {
			log.Warn("meta-incident decision rejected: action outside the restricted self-healing set",
				zap.String("action_key", decision.Action.Key))
			if failErr := d.orch.Fail(ctx, incidentID, fmt.Sprintf("decision %q is not a restricted self-healing action", decision.Action.Key)); failErr != nil {
				log.Error("failed to record HUMAN_TAKEOVER_REQUIRED for a disallowed meta-incident action", zap.Error(failErr))
			}
			return
		}

		criteria := executor.SuccessCriteria{}
		regression := executor.RegressionConfig{}
		execErr := d.orch.RunExecution(ctx, incidentID, decision, criteria, d.cfg.ObservationWindow(), nil, regression)
		if execErr == nil {
			return
		}

		if !apperrors.Is(execErr, apperrors.ErrorTypeValidation) {
			log.Error("execution phase failed", zap.Error(execErr), zap.Uint64("round", round))
			return
		}

		log.Warn("sandbox/policy rejected the committed action, retrying", zap.Error(execErr), zap.Uint64("round", round))
		if round == uint64(maxRounds) {
			if failErr := d.orch.Fail(ctx, incidentID, fmt.Sprintf("exhausted %d rounds without a clean execution: %v", maxRounds, execErr)); failErr != nil {
				log.Error("failed to record FAILED after exhausting retry rounds", zap.Error(failErr))
			}
		}
	}
}

// runMetaIncident drives a meta-incident through the same bounded pipeline
// as any other incident (spec §4.7: "follows the same pipeline"), registering
// it with the escalation watch until it resolves or is abandoned.
func (d *pipelineDriver) runMetaIncident(ctx context.Context, metaIncidentID string) {
	d.openMeta.Store(metaIncidentID, struct{}{})
	d.run(metaIncidentID, true)
}

// escalationLoop periodically checks every meta-incident still under watch
// against the escalation timeout, recording HUMAN_TAKEOVER_REQUIRED once one
// stalls past Tesc without resolving (spec §4.7).
func (d *pipelineDriver) escalationLoop(ctx context.Context, cadence time.Duration) {
	if cadence <= 0 {
		cadence = 10 * time.Second
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.openMeta.Range(func(key, _ interface{}) bool {
				incidentID := key.(string)
				incident, err := d.orch.Current(ctx, incidentID)
				if err != nil {
					return true
				}
				if incident.Status.Terminal() {
					d.openMeta.Delete(incidentID)
					d.escalation.Clear(incidentID)
					return true
				}
				if d.escalation.Observe(incidentID) {
					d.logger.Warn("meta-incident exceeded escalation timeout unresolved", zap.String("meta_incident_id", incidentID))
					if failErr := d.orch.Fail(ctx, incidentID, "meta-incident exceeded escalation timeout without resolving"); failErr != nil {
						d.logger.Error("failed to record HUMAN_TAKEOVER_REQUIRED for a stalled meta-incident", zap.Error(failErr))
					}
					d.openMeta.Delete(incidentID)
					d.escalation.Clear(incidentID)
				}
				return true
			})
		}
	}
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Hot-reload non-structural knobs (spec §6: fsnotify-driven reload).
	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		logger.Info("configuration reloaded", zap.String("path", configPath))
	}, func(reloadErr error) {
		logger.Warn("configuration reload failed", zap.Error(reloadErr))
	})
	if err != nil {
		logger.Warn("config watcher unavailable, continuing on the initial snapshot", zap.Error(err))
	} else {
		defer watcher.Close()
	}

	idsvc := identity.NewService()
	reg := agents.NewRegistry(cfg.ReputationConfig())
	roster := agentRoster(cfg.Quorum.MinAgents)
	for _, a := range roster {
		pub, regErr := idsvc.Register(a.ID)
		if regErr != nil {
			return regErr
		}
		a.PublicKey = pub
		reg.Join(a)
	}
	// The orchestrator and executor sign the events they append to the store.
	for _, producer := range []string{"orchestrator", "executor"} {
		if _, regErr := idsvc.Register(producer); regErr != nil {
			return regErr
		}
	}

	brRegistry := breaker.NewRegistry(func(t breaker.Transition) {
		logger.Info("breaker transition", zap.String("dependency", t.Dependency), zap.String("from", string(t.From)), zap.String("to", string(t.To)))
	})
	rl := ratelimit.NewLimiter(cfg.RateLimitFor("llm", ratelimit.Limits{RPS: 5, Burst: 10}))

	memory := vectormemory.NewStore()
	invokers := buildModelInvokers(logger)
	hourlyCap, dailyCap := 10.0, 100.0
	if b, ok := cfg.Budget["llm"]; ok {
		if b.HourlyCap > 0 {
			hourlyCap = b.HourlyCap
		}
		if b.DailyCap > 0 {
			dailyCap = b.DailyCap
		}
	}
	router := costRouterFor(hourlyCap, dailyCap)

	runtime := agents.NewRuntime()
	causalGraph := defaultCausalGraph()
	cascadeForecaster := agents.NewCascadeForecaster(30, 5.0, 0.6)
	for _, a := range roster {
		llmProducer := agents.NewLLMProducer(router, invokers, memory, rolePromptBuilder(a.Role), 0.5)

		// Diagnosis and Prediction ground the shared LLM path in a bounded
		// algorithm rather than trusting its bare claim (spec §4.5); the
		// other three roles use it directly.
		var producer agents.Producer = llmProducer
		switch a.Role {
		case domain.RoleDiagnosis:
			producer = agents.NewDiagnosisProducer(causalGraph, 3, 4, llmProducer)
		case domain.RolePrediction:
			producer = agents.NewPredictionProducer(cascadeForecaster, defaultCascadeSignals, llmProducer)
		}

		w := agents.NewWorker(a, producer, idsvc, brRegistry, cfg.BreakerConfigFor("llm"), rl,
			cfg.RateLimitFor("llm", ratelimit.Limits{RPS: 5, Burst: 10}), 1<<20)
		runtime.Register(w)
	}

	sink := eventstore.NewMemSink()
	store := eventstore.NewStore(sink, idsvc)

	consensusEngine := consensus.NewEngine(cfg.ConsensusEngineConfig(), idsvc, reg, memoryEvidenceResolver{memory: memory}, idsvc, consensus.DefaultHasher)

	backend := sandbox.NewBackend()
	exec := executor.NewExecutor(backend, store, "executor")
	gate, err := policy.NewGate(ctx, policy.DefaultModule)
	if err != nil {
		return err
	}
	exec.Policy = gate

	var notifier *notify.Notifier
	if cfg.Slack.Token != "" {
		notifier = notify.NewNotifier(notify.NewSlackChannel(cfg.Slack.Token), cfg.Slack.ChannelID)
	} else {
		notifier = notify.NewNotifier(noopNotificationChannel{logger: logger}, cfg.Slack.ChannelID)
	}

	promReg := prometheus.NewRegistry()
	mhm := meta.NewMonitor(promReg, cfg.MHMThresholds())
	metaFactory := meta.NewFactory(cfg.MHM.MaxMetaDepth, func() string { return fmt.Sprintf("meta-%d", time.Now().UnixNano()) })

	endpoints, workerWG := runtime.Start(ctx, consensusEngine)

	orch := orchestrator.NewOrchestrator(store, runtime, endpoints, consensusEngine, exec, notifier, metaFactory,
		"orchestrator", func() string { return fmt.Sprintf("inc-%d", time.Now().UnixNano()) })
	driver := &pipelineDriver{orch: orch, cfg: cfg, logger: logger, escalation: meta.NewEscalationTracker(cfg.MHM.EscalationTimeout)}
	orch.MetaDriver = driver.runMetaIncident

	// systemIncident is a standing target for health markers the MHM raises
	// outside of any single incident's own stream (spec §4.7): DEGRADED
	// dependency notices and the CRITICAL-path meta-incident handoff.
	systemIncident, err := orch.Open(ctx, domain.SeverityInfo, domain.Tier3, "", 0)
	if err != nil {
		return err
	}

	server := controlapi.NewServer(driver, store, runtime, controlapi.DefaultScenarios())

	go agents.CheckpointLoop(ctx, reg, store, "reputation-checkpoint", 30*time.Second)
	go runMHMLoop(ctx, mhm, reg, brRegistry, orch, systemIncident.ID, cfg.MHM.Cadence)
	go driver.escalationLoop(ctx, cfg.MHM.Cadence)

	httpServer := &http.Server{Addr: ":" + cfg.Server.ListenPort, Handler: server}
	metricsServer := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("control API listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("metrics listening", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
	workerWG.Wait()
	return nil
}

// runMHMLoop periodically samples agent and dependency health, feeds it to
// the Meta-Health Monitor (spec §4.7: "fixed cadence watcher"), and acts on
// the assessed Severity: CRITICAL durably quarantines every agent already on
// PROBATION and raises a meta-incident against systemIncidentID; DEGRADED
// with an open dependency breaker records an informational DEGRADED marker
// instead of escalating further.
func runMHMLoop(ctx context.Context, mhm *meta.Monitor, reg *agents.Registry, br *breaker.Registry, orch *orchestrator.Orchestrator, systemIncidentID string, cadence time.Duration) {
	if cadence <= 0 {
		cadence = 10 * time.Second
	}
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	metaRaised := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := reg.Snapshot()
			var unhealthy int
			for _, a := range snapshot {
				if a.State == domain.AgentQuarantined || a.State == domain.AgentDead {
					unhealthy++
				}
			}
			agentFailureRate := 0.0
			if len(snapshot) > 0 {
				agentFailureRate = float64(unhealthy) / float64(len(snapshot))
			}
			openBreakers := 0
			if br.State("llm") == breaker.StateOpen {
				openBreakers = 1
			}

			severity := mhm.Evaluate(meta.Sample{
				AgentFailureRate: agentFailureRate,
				OpenBreakers:     openBreakers,
			})

			switch severity {
			case meta.SeverityCritical:
				for _, a := range snapshot {
					if a.State == domain.AgentProbation {
						reg.Quarantine(a.ID)
					}
				}
				if !metaRaised {
					if err := orch.RaiseMetaIncident(ctx, systemIncidentID); err == nil {
						metaRaised = true
					}
				}
			case meta.SeverityDegraded:
				metaRaised = false
				if openBreakers > 0 {
					_ = orch.AppendDegraded(ctx, systemIncidentID, "llm", "circuit breaker open during a DEGRADED assessment")
				}
			default:
				metaRaised = false
			}
		}
	}
}
