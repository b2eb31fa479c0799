package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deestage/internal/application/dto"
	"github.com/YoshitsuguKoike/deestage/internal/domain/failure"
	loopcmd "github.com/YoshitsuguKoike/deestage/internal/interface/cli/loop"
	"github.com/YoshitsuguKoike/deestage/internal/interface/cli/session"
)

func run(t *testing.T, home string, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--home", home}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, home string, args ...string) string {
	t.Helper()
	out, err := run(t, home, args...)
	require.NoError(t, err, out)
	return out
}

func TestInitWritesRegistryAndSettings(t *testing.T) {
	home := t.TempDir()

	out := mustRun(t, home, "init")
	assert.Contains(t, out, "WROTE: "+filepath.ToSlash(filepath.Join(home, "etc", "registry.yaml")))
	assert.Contains(t, out, "WROTE: "+filepath.ToSlash(filepath.Join(home, "setting.yaml")))

	out = mustRun(t, home, "init")
	assert.Equal(t, 2, strings.Count(out, "SKIP (exists)"))

	// the written registry is picked up by later commands
	out = mustRun(t, home, "session", "start", "--id", "s1", "--type", "full")
	var show session.ShowOutput
	require.NoError(t, json.Unmarshal([]byte(out), &show))
	assert.Len(t, show.State.Stages, 11)
}

func TestQuickSessionEndToEnd(t *testing.T) {
	home := t.TempDir()

	out := mustRun(t, home, "session", "start", "--id", "s1", "--type", "quick", "--feature", "login", "--meta", "ticket=42")
	var show session.ShowOutput
	require.NoError(t, json.Unmarshal([]byte(out), &show))
	assert.Equal(t, "login", show.State.Feature)
	assert.Equal(t, "42", show.State.Metadata["ticket"])
	assert.Equal(t, "run DEV with executor developer", show.Hint)

	var decision dto.LoopDecision
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, home, "loop", "check", "s1")), &decision))
	assert.Equal(t, dto.LoopContinue, decision.Action)
	assert.Equal(t, 1, decision.Iteration)

	mustRun(t, home, "stage", "start", "s1", "DEV")
	for _, stage := range []string{"DEV", "REVIEW", "TEST", "RETRO"} {
		var resp dto.OutcomeResponse
		require.NoError(t, json.Unmarshal([]byte(mustRun(t, home, "stage", "report", "s1", stage, "-m", "VERDICT: PASS")), &resp))
		assert.Equal(t, dto.ActionAdvanced, resp.Action, stage)
	}

	require.NoError(t, json.Unmarshal([]byte(mustRun(t, home, "loop", "check", "s1")), &decision))
	assert.Equal(t, dto.LoopExit, decision.Action)
	assert.Equal(t, "completed-clean", decision.Reason)

	_, err := run(t, home, "loop", "check", "--exit-code", "s1")
	var stopped *loopcmd.StoppedError
	require.True(t, errors.As(err, &stopped))
	assert.Equal(t, "completed-clean", stopped.Reason)

	out = mustRun(t, home, "events", "list", "s1", "--type", "stage.verdict")
	assert.Equal(t, 4, countLines(out))

	out = mustRun(t, home, "events", "reliability", "s1")
	assert.Contains(t, out, `"pass1_rate": 1`)

	out = mustRun(t, home, "doctor")
	assert.Contains(t, out, "sessions=1 files=3 ok=3 warn=0 error=0")

	out = mustRun(t, home, "events", "trim", "s1", "--max", "3")
	assert.True(t, strings.HasPrefix(out, "trimmed "))
	assert.Equal(t, 3, countLines(mustRun(t, home, "events", "list", "s1")))
}

func TestManualStopAndErrors(t *testing.T) {
	home := t.TempDir()
	mustRun(t, home, "session", "start", "--id", "s1", "--type", "quick")

	mustRun(t, home, "loop", "error", "s1", "-m", "executor crashed")
	mustRun(t, home, "loop", "reset-errors", "s1")
	mustRun(t, home, "loop", "stop", "s1", "--note", "freeze")

	var decision dto.LoopDecision
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, home, "loop", "check", "s1")), &decision))
	assert.Equal(t, "manual", decision.Reason)

	// restarting the session starts a fresh loop
	mustRun(t, home, "session", "start", "--id", "s1", "--type", "quick")
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, home, "loop", "check", "s1")), &decision))
	assert.Equal(t, dto.LoopContinue, decision.Action)
}

func TestCommandErrors(t *testing.T) {
	home := t.TempDir()

	_, err := run(t, home, "session", "show", "ghost")
	assert.True(t, failure.IsNotFound(err))

	_, err = run(t, home, "loop", "stop", "typo", "--note", "x")
	assert.True(t, failure.IsNotFound(err))
	assert.NoDirExists(t, filepath.Join(home, "sessions", "typo"))

	_, err = run(t, home, "session", "start", "--type", "nope")
	assert.True(t, failure.IsProgramming(err))

	_, err = run(t, home, "session", "start", "--id", "s1", "--meta", "novalue")
	assert.Error(t, err)

	mustRun(t, home, "session", "start", "--id", "s1", "--type", "quick")
	_, err = run(t, home, "stage", "report", "s1", "DEV")
	assert.Error(t, err, "a report is required")

	_, err = run(t, home, "events", "trim", "s1", "--max", "-1")
	assert.NoError(t, err, "non-positive max falls back to the configured cap")
}

func TestSettingsFromEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DEESTAGE_MAX_ITERATIONS", "1")

	mustRun(t, home, "session", "start", "--id", "s1", "--type", "quick")
	mustRun(t, home, "loop", "check", "s1")

	var decision dto.LoopDecision
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, home, "loop", "check", "s1")), &decision))
	assert.Equal(t, "max-iterations", decision.Reason)
}

func countLines(s string) int {
	n := 0
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	return n
}
