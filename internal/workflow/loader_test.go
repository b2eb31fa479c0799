package workflow

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
)

const minimalRegistry = `version: 1
defaults:
  max_retries: 2
  max_iterations: 10
  max_consecutive_errors: 3
stages:
  - key: DEV
    executor: developer
    kind: build
  - key: REVIEW
    executor: reviewer
    kind: review
  - key: TEST
    executor: tester
    kind: verification
parallel_groups:
  - name: post-dev
    members: [REVIEW, TEST]
    after: DEV
workflows:
  - key: mini
    stages: [DEV, REVIEW, TEST]
    parallel_groups: [post-dev]
event_types:
  - type: stage.completed
    category: stage
`

func TestLoadDefault(t *testing.T) {
	reg, err := LoadDefault()
	require.NoError(t, err)

	quick, err := reg.WorkflowTemplate("quick")
	require.NoError(t, err)
	assert.Equal(t, []string{"DEV", "REVIEW", "TEST", "RETRO"}, quick.Stages)
	assert.Equal(t, []string{"post-dev"}, quick.ParallelGroups)

	members, err := reg.ParallelGroupMembers("post-dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"REVIEW", "TEST"}, members)

	assert.Equal(t, Defaults{MaxRetries: 3, MaxIterations: 50, MaxConsecutiveErrors: 5}, reg.Defaults())
	assert.Equal(t, KindVerification, reg.KindOf("TEST"))
	assert.Equal(t, KindUnknown, reg.KindOf("NOPE"))
	assert.Equal(t, []string{"quick", "standard", "full"}, reg.WorkflowTypes())

	et, err := reg.EventType("stage.verdict")
	require.NoError(t, err)
	assert.Equal(t, "verdict", et.Category)
}

func TestRegistryNotFound(t *testing.T) {
	reg, err := Parse([]byte(minimalRegistry))
	require.NoError(t, err)

	_, err = reg.StageDefinition("PLAN")
	assert.True(t, failure.IsNotFound(err))
	_, err = reg.WorkflowTemplate("quick")
	assert.True(t, failure.IsNotFound(err))
	_, err = reg.ParallelGroupMembers("acceptance")
	assert.True(t, failure.IsNotFound(err))
	_, err = reg.EventType("loop.stopped")
	assert.True(t, failure.IsNotFound(err))
}

func TestRegistryReturnsCopies(t *testing.T) {
	reg, err := Parse([]byte(minimalRegistry))
	require.NoError(t, err)

	members, err := reg.ParallelGroupMembers("post-dev")
	require.NoError(t, err)
	members[0] = "MUTATED"

	again, err := reg.ParallelGroupMembers("post-dev")
	require.NoError(t, err)
	assert.Equal(t, []string{"REVIEW", "TEST"}, again)
}

func TestWithDefaults(t *testing.T) {
	reg, err := Parse([]byte(minimalRegistry))
	require.NoError(t, err)

	over := reg.WithDefaults(Defaults{MaxRetries: 7})
	assert.Equal(t, Defaults{MaxRetries: 7, MaxIterations: 10, MaxConsecutiveErrors: 3}, over.Defaults())
	assert.Equal(t, 2, reg.Defaults().MaxRetries, "original registry must stay untouched")
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/home/etc/registry.yaml", []byte(minimalRegistry), 0o644))

	reg, err := LoadFile(fs, "/home/etc/registry.yaml")
	require.NoError(t, err)
	tpl, err := reg.WorkflowTemplate("mini")
	require.NoError(t, err)
	assert.Equal(t, []string{"DEV", "REVIEW", "TEST"}, tpl.Stages)

	_, err = LoadFile(fs, "/home/etc/missing.yaml")
	assert.Error(t, err)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no stages",
			yaml:    "version: 1\n",
			wantErr: `registry: "stages" must be a non-empty array`,
		},
		{
			name: "unknown field",
			yaml: `version: 1
stagez: []`,
			wantErr: "registry: parse",
		},
		{
			name: "duplicate stage",
			yaml: `stages:
  - {key: DEV, executor: d, kind: build}
  - {key: DEV, executor: d, kind: build}`,
			wantErr: `registry.stages[1]: duplicate key "DEV"`,
		},
		{
			name: "colon in stage key",
			yaml: `stages:
  - {key: "DEV:2", executor: d, kind: build}`,
			wantErr: `must not contain ":"`,
		},
		{
			name: "bad kind",
			yaml: `stages:
  - {key: DEV, executor: d, kind: coding}`,
			wantErr: `unsupported kind "coding"`,
		},
		{
			name: "missing executor",
			yaml: `stages:
  - {key: DEV, kind: build}`,
			wantErr: `"executor" is required`,
		},
		{
			name: "single member group",
			yaml: `stages:
  - {key: DEV, executor: d, kind: build}
parallel_groups:
  - {name: g, members: [DEV]}`,
			wantErr: "at least two members",
		},
		{
			name: "template with unknown stage",
			yaml: `stages:
  - {key: DEV, executor: d, kind: build}
workflows:
  - {key: w, stages: [DEV, QA]}`,
			wantErr: `unknown stage "QA"`,
		},
		{
			name: "zero defaults",
			yaml: `stages:
  - {key: DEV, executor: d, kind: build}
workflows:
  - {key: w, stages: [DEV]}`,
			wantErr: `"defaults" values must be positive`,
		},
		{
			name: "no event types",
			yaml: `defaults: {max_retries: 1, max_iterations: 1, max_consecutive_errors: 1}
stages:
  - {key: DEV, executor: d, kind: build}
workflows:
  - {key: w, stages: [DEV]}`,
			wantErr: `"event_types" must be a non-empty array`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
