package workflow

import (
	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
)

// Registry provides read-only lookups over a validated Definition.
// There is no mutation API; a changed configuration means a new Registry.
type Registry struct {
	defaults   Defaults
	stages     map[string]StageDefinition
	stageOrder []string
	groups     map[string]ParallelGroupDefinition
	templates  map[string]WorkflowTemplate
	tplOrder   []string
	eventTypes map[string]EventTypeDefinition
}

func newRegistry(def Definition) *Registry {
	r := &Registry{
		defaults:   def.Defaults,
		stages:     make(map[string]StageDefinition, len(def.Stages)),
		groups:     make(map[string]ParallelGroupDefinition, len(def.ParallelGroups)),
		templates:  make(map[string]WorkflowTemplate, len(def.Workflows)),
		eventTypes: make(map[string]EventTypeDefinition, len(def.EventTypes)),
	}
	for _, st := range def.Stages {
		r.stages[st.Key] = st
		r.stageOrder = append(r.stageOrder, st.Key)
	}
	for _, g := range def.ParallelGroups {
		g.Members = append([]string(nil), g.Members...)
		r.groups[g.Name] = g
	}
	for _, wf := range def.Workflows {
		wf.Stages = append([]string(nil), wf.Stages...)
		wf.ParallelGroups = append([]string(nil), wf.ParallelGroups...)
		r.templates[wf.Key] = wf
		r.tplOrder = append(r.tplOrder, wf.Key)
	}
	for _, et := range def.EventTypes {
		r.eventTypes[et.Type] = et
	}
	return r
}

// WithDefaults returns a copy of the registry whose positive override values
// replace the configured defaults. Zero or negative values keep the registry's own.
func (r *Registry) WithDefaults(override Defaults) *Registry {
	clone := *r
	if override.MaxRetries > 0 {
		clone.defaults.MaxRetries = override.MaxRetries
	}
	if override.MaxIterations > 0 {
		clone.defaults.MaxIterations = override.MaxIterations
	}
	if override.MaxConsecutiveErrors > 0 {
		clone.defaults.MaxConsecutiveErrors = override.MaxConsecutiveErrors
	}
	return &clone
}

// StageDefinition returns the definition of a base stage key
func (r *Registry) StageDefinition(key string) (StageDefinition, error) {
	st, ok := r.stages[key]
	if !ok {
		return StageDefinition{}, failure.NotFound("STAGE_NOT_FOUND", "unknown stage %q", key)
	}
	return st, nil
}

// KindOf returns the kind of a base stage key, or KindUnknown
func (r *Registry) KindOf(key string) StageKind {
	if st, ok := r.stages[key]; ok {
		return st.Kind
	}
	return KindUnknown
}

// WorkflowTemplate returns the template for a workflow type
func (r *Registry) WorkflowTemplate(workflowType string) (WorkflowTemplate, error) {
	wf, ok := r.templates[workflowType]
	if !ok {
		return WorkflowTemplate{}, failure.NotFound("WORKFLOW_NOT_FOUND", "unknown workflow type %q", workflowType)
	}
	return wf, nil
}

// WorkflowTypes lists template keys in declaration order
func (r *Registry) WorkflowTypes() []string {
	return append([]string(nil), r.tplOrder...)
}

// StageKeys lists stage keys in declaration order
func (r *Registry) StageKeys() []string {
	return append([]string(nil), r.stageOrder...)
}

// ParallelGroup returns the full group definition
func (r *Registry) ParallelGroup(name string) (ParallelGroupDefinition, error) {
	g, ok := r.groups[name]
	if !ok {
		return ParallelGroupDefinition{}, failure.NotFound("GROUP_NOT_FOUND", "unknown parallel group %q", name)
	}
	return g, nil
}

// ParallelGroupMembers returns the base stage keys that belong to a group
func (r *Registry) ParallelGroupMembers(name string) ([]string, error) {
	g, err := r.ParallelGroup(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), g.Members...), nil
}

// Defaults returns the numeric ceilings
func (r *Registry) Defaults() Defaults {
	return r.defaults
}

// EventType looks up a member of the closed event-type set
func (r *Registry) EventType(eventType string) (EventTypeDefinition, error) {
	et, ok := r.eventTypes[eventType]
	if !ok {
		return EventTypeDefinition{}, failure.NotFound("EVENT_TYPE_NOT_FOUND", "unknown event type %q", eventType)
	}
	return et, nil
}
