package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/replay"
)

const pizzaDialog = `trainDialogId: td-cli
definitions:
  entities:
    - entityId: ent-toppings
      entityName: toppings
      entityType: LUIS
      isMultivalue: true
  actions:
    - actionId: act-confirm
      actionType: TEXT
      payload: You have $toppings on your pizza.
      isTerminal: false
    - actionId: act-checkout
      actionType: API_LOCAL
      payload: checkout
      arguments:
        - parameter: toppings
          value: $toppings
      isTerminal: true
rounds:
  - extractorStep:
      textVariations:
        - text: cheese please
          labelEntities:
            - entityId: ent-toppings
              entityText: cheese
    scorerSteps:
      - labelAction: act-confirm
        input:
          filledEntities:
            - entityId: ent-toppings
              values:
                - userText: cheese
      - labelAction: act-checkout
        input:
          filledEntities:
            - entityId: ent-toppings
              values:
                - userText: cheese
`

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := NewRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeDialog(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "dialog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func useSQLite(t *testing.T) {
	t.Helper()

	t.Setenv("DIALOGMESH_STORAGE_BACKEND", "sqlite")
	t.Setenv("DIALOGMESH_STORAGE_ADDRESS", filepath.Join(t.TempDir(), "state.db"))
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}

func TestReplay_Text(t *testing.T) {
	path := writeDialog(t, pizzaDialog)

	stdout, _, err := executeCLI(t, "replay", path, "--update-state")
	require.NoError(t, err)

	assert.Contains(t, stdout, "dialog td-cli: 1 rounds, mode Wait")
	assert.Contains(t, stdout, "user  cheese please")
	assert.Contains(t, stdout, "bot   You have cheese on your pizza.")
	assert.Contains(t, stdout, "bot   checkout(cheese)")
	assert.Contains(t, stdout, "toppings: cheese")
	assert.NotContains(t, stdout, "discrepancies")
}

func TestReplay_JSON(t *testing.T) {
	path := writeDialog(t, pizzaDialog)

	stdout, _, err := executeCLI(t, "replay", path, "--update-state", "-o", "json")
	require.NoError(t, err)

	var h replay.History
	require.NoError(t, json.Unmarshal([]byte(stdout), &h))
	assert.Len(t, h.Activities, 3)
	assert.Equal(t, "Wait", string(h.DialogMode))
}

func TestReplay_YAMLWithDiscrepancy(t *testing.T) {
	diverged := replaceOnce(t, pizzaDialog, "entityText: cheese", "entityText: ham")
	path := writeDialog(t, diverged)

	stdout, _, err := executeCLI(t, "replay", path, "--update-state", "-o", "yaml")
	require.NoError(t, err)

	var h replay.History
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &h))
	require.NotEmpty(t, h.Discrepancies)
	assert.Equal(t, "User Input Step:", h.Discrepancies[1])
	assert.Len(t, h.Activities, 1)
}

func TestReplay_Errors(t *testing.T) {
	_, _, err := executeCLI(t, "replay", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := writeDialog(t, pizzaDialog)
	_, _, err = executeCLI(t, "replay", path, "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")

	t.Setenv("DIALOGMESH_STORAGE_BACKEND", "etcd")
	_, _, err = executeCLI(t, "replay", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage backend")
}

func TestPlay(t *testing.T) {
	path := writeDialog(t, pizzaDialog)

	stdout, _, err := executeCLI(t, "play", path)
	require.NoError(t, err)

	assert.Equal(t, "user  cheese please\n"+
		"bot   You have cheese on your pizza.\n"+
		"bot   checkout(cheese)\n", stdout)
}

func TestPlay_MaxStepsFromConfig(t *testing.T) {
	t.Setenv("DIALOGMESH_MAX_STEPS", "1")
	path := writeDialog(t, pizzaDialog)

	stdout, _, err := executeCLI(t, "play", path)
	require.ErrorIs(t, err, core.ErrStepLimit)

	assert.Contains(t, stdout, "bot   You have cheese on your pizza.")
	assert.Contains(t, stdout, "exceeded max scoring steps: 1")
	assert.NotContains(t, stdout, "checkout(cheese)")
}

func TestInspect_AfterReplay(t *testing.T) {
	useSQLite(t)
	path := writeDialog(t, pizzaDialog)

	_, _, err := executeCLI(t, "replay", path, "--update-state", "--scope", "trainer", "--audit")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, "inspect", "trainer", "--history")
	require.NoError(t, err)
	assert.Contains(t, stdout, "scope trainer: NoSession")
	assert.Contains(t, stdout, "toppings: cheese")
	assert.Contains(t, stdout, "td-cli  3 activities, 0 discrepancies")

	stdout, _, err = executeCLI(t, "inspect", "trainer", "-o", "json", "--history")
	require.NoError(t, err)

	var report ScopeReport
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	assert.Equal(t, "trainer", report.Scope)
	require.Len(t, report.Memories, 1)
	assert.Equal(t, "toppings", report.Memories[0].EntityName)
	require.Len(t, report.TrainHistory, 1)
}

func TestInspect_EmptyScope(t *testing.T) {
	stdout, _, err := executeCLI(t, "inspect", "nobody")
	require.NoError(t, err)
	assert.Equal(t, "scope nobody: NoSession\n", stdout)
}

func replaceOnce(t *testing.T, s, old, replacement string) string {
	t.Helper()

	i := bytes.Index([]byte(s), []byte(old))
	require.GreaterOrEqual(t, i, 0)
	return s[:i] + replacement + s[i+len(old):]
}
