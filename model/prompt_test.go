package model

import (
	"encoding/json"
	"testing"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPrompt_SkipsLocalEntities(t *testing.T) {
	defs := testutil.PizzaDefinitions()

	p, err := ExtractPrompt(ExtractRequest{Text: "add olives", Definitions: defs})
	require.NoError(t, err)
	assert.Equal(t, ExtractToolName, p.ToolName)
	assert.Contains(t, p.System, ExtractToolName)

	var input struct {
		Utterance string `json:"utterance"`
		Entities  []struct {
			Name    string `json:"name"`
			Negates string `json:"negates"`
		} `json:"entities"`
	}
	require.NoError(t, json.Unmarshal([]byte(p.User), &input))
	assert.Equal(t, "add olives", input.Utterance)

	names := map[string]string{}
	for _, e := range input.Entities {
		names[e.Name] = e.Negates
	}
	assert.NotContains(t, names, "order")
	assert.Equal(t, "toppings", names["~toppings"])

	items := p.ToolSchema["properties"].(map[string]any)["entities"].(map[string]any)
	assert.Equal(t, "array", items["type"])
	assert.Equal(t, "object", items["items"].(map[string]any)["type"])
}

func TestScorePrompt_IncludesMemory(t *testing.T) {
	defs := testutil.PizzaDefinitions()
	filled := []core.FilledEntity{{EntityID: testutil.ToppingsID, Values: []core.MemoryValue{{UserText: "cheese"}, {UserText: "ham"}}}}

	p, err := ScorePrompt(ScoreRequest{Text: "cheese and ham", FilledEntities: filled, Definitions: defs, Step: 1})
	require.NoError(t, err)

	var input struct {
		Memory  map[string][]string `json:"memory"`
		Actions []map[string]any    `json:"actions"`
		Step    int                 `json:"step"`
	}
	require.NoError(t, json.Unmarshal([]byte(p.User), &input))
	assert.Equal(t, []string{"cheese", "ham"}, input.Memory["toppings"])
	assert.Len(t, input.Actions, len(defs.Actions))
	assert.Equal(t, 1, input.Step)
}

func TestParseExtractOutput(t *testing.T) {
	req := ExtractRequest{Text: "Two pizzas with Cheese for Alice", Definitions: testutil.PizzaDefinitions()}
	raw := []byte(`{"entities":[
		{"entityName":"toppings","text":"cheese"},
		{"entityName":"name","text":"Alice"},
		{"entityName":"count","text":"Two"},
		{"entityName":"order","text":"pizzas"},
		{"entityName":"toppings","text":"pineapple"},
		{"entityName":"nope","text":"Alice"}
	]}`)

	resp, err := ParseExtractOutput(raw, req)
	require.NoError(t, err)
	require.Len(t, resp.PredictedEntities, 3)

	cheese := resp.PredictedEntities[0]
	assert.Equal(t, testutil.ToppingsID, cheese.EntityID)
	assert.Equal(t, "Cheese", cheese.EntityText)
	assert.Equal(t, 16, cheese.StartIndex)
	assert.Equal(t, 22, cheese.EndIndex)

	assert.Equal(t, testutil.NameID, resp.PredictedEntities[1].EntityID)
	assert.Equal(t, "builtin.number", resp.PredictedEntities[2].BuiltinType)
}

func TestParseExtractOutput_Invalid(t *testing.T) {
	req := ExtractRequest{Text: "hi", Definitions: testutil.PizzaDefinitions()}

	_, err := ParseExtractOutput([]byte(`not json`), req)
	require.Error(t, err)

	_, err = ParseExtractOutput([]byte(`{}`), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entities")

	_, err = ParseExtractOutput([]byte(`{"entities":"cheese"}`), req)
	require.Error(t, err)
}

func TestParseScoreOutput(t *testing.T) {
	req := ScoreRequest{Definitions: testutil.PizzaDefinitions()}
	raw := []byte(`{"actions":[
		{"actionId":"` + testutil.ActionAskToppings + `","score":0.3},
		{"actionId":"missing","score":0.99},
		{"actionId":"` + testutil.ActionConfirm + `","score":1.7},
		{"actionId":"` + testutil.ActionCheckout + `","score":-1}
	]}`)

	resp, err := ParseScoreOutput(raw, req)
	require.NoError(t, err)
	require.Len(t, resp.ScoredActions, 3)

	assert.Equal(t, ScoredAction{ActionID: testutil.ActionConfirm, Score: 1}, resp.ScoredActions[0])
	assert.Equal(t, testutil.ActionAskToppings, resp.ScoredActions[1].ActionID)
	assert.Equal(t, ScoredAction{ActionID: testutil.ActionCheckout, Score: 0}, resp.ScoredActions[2])
}
