package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/deestage/internal/embed"
)

// LoadDefault builds the registry from the built-in definition
func LoadDefault() (*Registry, error) {
	return Parse(embed.DefaultRegistry())
}

// LoadFile loads and validates a registry from the specified path
func LoadFile(fs afero.Fs, path string) (*Registry, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("registry: read: %w", err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse decodes a registry document with strict field checking and validates it
func Parse(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Fail on unknown fields
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("registry: parse: %w", err)
	}

	if err := validateDefinition(&def); err != nil {
		return nil, err
	}

	return newRegistry(def), nil
}

// validateDefinition performs schema validation on the registry document
func validateDefinition(def *Definition) error {
	if len(def.Stages) == 0 {
		return errors.New(`registry: "stages" must be a non-empty array`)
	}

	stages := make(map[string]StageDefinition, len(def.Stages))
	for i, st := range def.Stages {
		idx := fmt.Sprintf("registry.stages[%d]", i)
		if strings.TrimSpace(st.Key) == "" {
			return fmt.Errorf(`%s: "key" is required`, idx)
		}
		if strings.Contains(st.Key, ":") {
			return fmt.Errorf(`%s: key "%s" must not contain ":"`, idx, st.Key)
		}
		if _, exists := stages[st.Key]; exists {
			return fmt.Errorf(`%s: duplicate key "%s"`, idx, st.Key)
		}
		if strings.TrimSpace(st.Executor) == "" {
			return fmt.Errorf(`%s: "executor" is required`, idx)
		}
		if !st.Kind.IsValid() {
			return fmt.Errorf(`%s: unsupported kind "%s"`, idx, st.Kind)
		}
		stages[st.Key] = st
	}

	groups := make(map[string]struct{}, len(def.ParallelGroups))
	for i, g := range def.ParallelGroups {
		idx := fmt.Sprintf("registry.parallel_groups[%d]", i)
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf(`%s: "name" is required`, idx)
		}
		if _, exists := groups[g.Name]; exists {
			return fmt.Errorf(`%s: duplicate name "%s"`, idx, g.Name)
		}
		if len(g.Members) < 2 {
			return fmt.Errorf(`%s: a parallel group needs at least two members`, idx)
		}
		for _, m := range g.Members {
			if _, ok := stages[m]; !ok {
				return fmt.Errorf(`%s: unknown member stage "%s"`, idx, m)
			}
		}
		if g.After != "" {
			if _, ok := stages[g.After]; !ok {
				return fmt.Errorf(`%s: unknown "after" stage "%s"`, idx, g.After)
			}
		}
		groups[g.Name] = struct{}{}
	}

	for i, st := range def.Stages {
		if st.ParallelGroup == "" {
			continue
		}
		if _, ok := groups[st.ParallelGroup]; !ok {
			return fmt.Errorf(`registry.stages[%d]: unknown parallel_group "%s"`, i, st.ParallelGroup)
		}
	}

	if len(def.Workflows) == 0 {
		return errors.New(`registry: "workflows" must be a non-empty array`)
	}
	seen := make(map[string]struct{}, len(def.Workflows))
	for i, wf := range def.Workflows {
		idx := fmt.Sprintf("registry.workflows[%d]", i)
		if strings.TrimSpace(wf.Key) == "" {
			return fmt.Errorf(`%s: "key" is required`, idx)
		}
		if _, exists := seen[wf.Key]; exists {
			return fmt.Errorf(`%s: duplicate key "%s"`, idx, wf.Key)
		}
		seen[wf.Key] = struct{}{}
		if len(wf.Stages) == 0 {
			return fmt.Errorf(`%s: "stages" must be a non-empty array`, idx)
		}
		for _, s := range wf.Stages {
			if _, ok := stages[s]; !ok {
				return fmt.Errorf(`%s: unknown stage "%s"`, idx, s)
			}
		}
		for _, g := range wf.ParallelGroups {
			if _, ok := groups[g]; !ok {
				return fmt.Errorf(`%s: unknown parallel group "%s"`, idx, g)
			}
		}
	}

	if def.Defaults.MaxRetries <= 0 || def.Defaults.MaxIterations <= 0 || def.Defaults.MaxConsecutiveErrors <= 0 {
		return errors.New(`registry: "defaults" values must be positive`)
	}

	if len(def.EventTypes) == 0 {
		return errors.New(`registry: "event_types" must be a non-empty array`)
	}
	types := make(map[string]struct{}, len(def.EventTypes))
	for i, et := range def.EventTypes {
		idx := fmt.Sprintf("registry.event_types[%d]", i)
		if strings.TrimSpace(et.Type) == "" {
			return fmt.Errorf(`%s: "type" is required`, idx)
		}
		if strings.TrimSpace(et.Category) == "" {
			return fmt.Errorf(`%s: "category" is required`, idx)
		}
		if _, exists := types[et.Type]; exists {
			return fmt.Errorf(`%s: duplicate type "%s"`, idx, et.Type)
		}
		types[et.Type] = struct{}{}
	}

	return nil
}
