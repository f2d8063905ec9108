package domain

// Role is one of the five agent specializations the Agent Runtime hosts
// (spec §4.5).
type Role string

const (
	RoleDetection     Role = "DETECTION"
	RoleDiagnosis     Role = "DIAGNOSIS"
	RolePrediction    Role = "PREDICTION"
	RoleResolution    Role = "RESOLUTION"
	RoleCommunication Role = "COMMUNICATION"
)

// Roles lists the fixed agent-role set in a stable order, used wherever the
// runtime needs to enumerate or fan out across all roles deterministically.
var Roles = []Role{RoleDetection, RoleDiagnosis, RolePrediction, RoleResolution, RoleCommunication}

// AgentState is the agent's reputation/health lifecycle (spec §3, §4.6).
type AgentState string

const (
	AgentHealthy     AgentState = "HEALTHY"
	AgentProbation   AgentState = "PROBATION"
	AgentQuarantined AgentState = "QUARANTINED"
	AgentDead        AgentState = "DEAD"
)

// Agent is one participant in consensus: a role instance with a reputation
// score and a public identity the Crypto Identity Service can verify
// signatures against.
type Agent struct {
	ID        string // role + instance id, e.g. "DIAGNOSIS-2"
	Role      Role
	PublicKey []byte
	// Reputation is in-memory, default 0.5 (per spec §3); periodically
	// checkpointed durably via pkg/agents' checkpoint loop (SPEC_FULL §3).
	Reputation float64
	State      AgentState
}

// ByzantineFault describes one chaos-injected misbehavior for an agent
// (SPEC_FULL §3, control-API chaos injection guard): spec §8's literal
// scenario 2 is "confidence=1.5 and a signature forged against its own
// key" — the two independent failure modes a test harness wants to force.
type ByzantineFault struct {
	// OverrideConfidence, if non-nil, replaces the agent's produced
	// confidence outright (e.g. 1.5, outside the valid [0,1] range).
	OverrideConfidence *float64
	// ForgeSignature corrupts the signature bytes after signing, simulating
	// a signature that does not verify against the agent's own key.
	ForgeSignature bool
}
