package plan

// =============================================================================
// Execution Planner
// =============================================================================
//
// Planner turns a classified (intent, confidence) pair into an ordered list
// of pipeline steps. Planning is deterministic and side-effect free: the
// same inputs always produce the same plan, and every plan ends with the
// validation step.

// Agent names the planner routes steps to.
const (
	AgentResearcher   = "researcher"
	AgentDomainExpert = "domain_expert"
	AgentAnalyst      = "analyst"
	AgentValidator    = "validator"
)

// Step names one unit of pipeline work: a target agent, an action, and its
// parameters. Plans are immutable once generated.
type Step struct {
	Agent  string         `json:"agent"`
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Config holds the static planning tables.
type Config struct {
	// HighConfidence is the score at or above which research is skipped
	// for non-volatile intents.
	HighConfidence float64

	// Volatile intents always get a research step: their underlying facts
	// change too quickly to answer from model memory, no matter how
	// confident the classification is.
	Volatile map[string]bool

	// Domains maps domain intents to the expert domain consulted for
	// validation. Intents in the map get a domain-expert step.
	Domains map[string]string

	// Complex intents get an additional analysis step.
	Complex map[string]bool
}

// DefaultConfig returns the standing planning tables.
func DefaultConfig() Config {
	return Config{
		HighConfidence: 0.85,
		Volatile: map[string]bool{
			"pricing":      true,
			"availability": true,
		},
		Domains: map[string]string{
			"legal":     "legal",
			"medical":   "medical",
			"financial": "finance",
			"technical": "engineering",
			"billing":   "general",
		},
		Complex: map[string]bool{
			"comparison":      true,
			"troubleshooting": true,
			"financial":       true,
		},
	}
}

// Planner generates execution plans.
type Planner struct {
	config Config
}

// NewPlanner creates a planner over the given tables.
func NewPlanner(cfg Config) *Planner {
	if cfg.HighConfidence <= 0 {
		cfg.HighConfidence = DefaultConfig().HighConfidence
	}
	return &Planner{config: cfg}
}

// GeneratePlan produces the ordered steps for one request. Plans range from
// a lone validation step (high-confidence, simple intent) to four steps
// (low-confidence domain-and-complex intent).
func (p *Planner) GeneratePlan(intent string, confidence float64) []Step {
	steps := make([]Step, 0, 4)

	if confidence < p.config.HighConfidence || p.config.Volatile[intent] {
		steps = append(steps, Step{
			Agent:  AgentResearcher,
			Action: "research",
			Params: map[string]any{"intent": intent, "fresh": p.config.Volatile[intent]},
		})
	}

	if domain, ok := p.config.Domains[intent]; ok {
		if domain == "" {
			domain = "general"
		}
		steps = append(steps, Step{
			Agent:  AgentDomainExpert,
			Action: "validate_domain",
			Params: map[string]any{"domain": domain},
		})
	}

	if p.config.Complex[intent] {
		steps = append(steps, Step{
			Agent:  AgentAnalyst,
			Action: "analyze",
			Params: map[string]any{"intent": intent},
		})
	}

	// Every plan ends with citation and accuracy checks.
	steps = append(steps, Step{
		Agent:  AgentValidator,
		Action: "validate_answer",
		Params: map[string]any{"checks": []string{"citations", "accuracy"}},
	})

	return steps
}
