package workflow

// StageKind groups stages by how their reports are judged
type StageKind string

const (
	KindPlan          StageKind = "plan"
	KindBuild         StageKind = "build"
	KindReview        StageKind = "review"
	KindVerification  StageKind = "verification"
	KindAdvisory      StageKind = "advisory"
	KindRetrospective StageKind = "retrospective"
	// KindUnknown is returned for stages the registry does not describe
	KindUnknown StageKind = ""
)

// IsValid returns true if the kind is one of the declared kinds
func (k StageKind) IsValid() bool {
	switch k {
	case KindPlan, KindBuild, KindReview, KindVerification, KindAdvisory, KindRetrospective:
		return true
	default:
		return false
	}
}

// StageDefinition describes one workflow phase
type StageDefinition struct {
	Key           string    `yaml:"key"`
	Label         string    `yaml:"label"`
	Icon          string    `yaml:"icon"`
	Executor      string    `yaml:"executor"`
	Kind          StageKind `yaml:"kind"`
	ParallelGroup string    `yaml:"parallel_group,omitempty"`
}

// WorkflowTemplate is a named workflow shape. Stages may repeat.
type WorkflowTemplate struct {
	Key            string   `yaml:"key"`
	Stages         []string `yaml:"stages"`
	ParallelGroups []string `yaml:"parallel_groups,omitempty"`
}

// ParallelGroupDefinition is a set of stages whose simultaneous completion matters.
// After names the stage whose completion makes the group eligible for a joint hint.
type ParallelGroupDefinition struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
	After   string   `yaml:"after,omitempty"`
}

// HasMember reports whether base is a member of the group
func (g ParallelGroupDefinition) HasMember(base string) bool {
	for _, m := range g.Members {
		if m == base {
			return true
		}
	}
	return false
}

// Defaults holds the numeric ceilings used by the governor and loop controller
type Defaults struct {
	MaxRetries           int `yaml:"max_retries"`
	MaxIterations        int `yaml:"max_iterations"`
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
}

// EventTypeDefinition is one member of the closed set of timeline event types
type EventTypeDefinition struct {
	Type     string `yaml:"type"`
	Category string `yaml:"category"`
	Label    string `yaml:"label"`
}

// Definition is the decoded registry document
type Definition struct {
	Version        int                       `yaml:"version"`
	Defaults       Defaults                  `yaml:"defaults"`
	Stages         []StageDefinition         `yaml:"stages"`
	ParallelGroups []ParallelGroupDefinition `yaml:"parallel_groups"`
	Workflows      []WorkflowTemplate        `yaml:"workflows"`
	EventTypes     []EventTypeDefinition     `yaml:"event_types"`
}
