package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, handler func(body map[string]any) string) *Model {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, handler(body))
	}))
	t.Cleanup(srv.Close)

	client := openai.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)

	return NewModelFromClient(&client, func(o *Options) { o.Model = "gpt-test" })
}

func completion(message string) string {
	return `{"id":"c1","object":"chat.completion","created":0,"model":"gpt-test","choices":[{"index":0,"finish_reason":"tool_calls","message":` + message + `}]}`
}

func toolCall(name, args string) string {
	encoded, _ := json.Marshal(args)
	return completion(`{"role":"assistant","content":null,"tool_calls":[{"id":"call_1","type":"function","function":{"name":"` + name + `","arguments":` + string(encoded) + `}}]}`)
}

func TestModel_Score(t *testing.T) {
	m := newTestModel(t, func(body map[string]any) string {
		assert.Equal(t, "gpt-test", body["model"])

		tools := body["tools"].([]any)
		require.Len(t, tools, 1)
		fn := tools[0].(map[string]any)["function"].(map[string]any)
		assert.Equal(t, model.ScoreToolName, fn["name"])

		return toolCall(model.ScoreToolName, `{"actions":[{"actionId":"`+testutil.ActionAskToppings+`","score":0.2},{"actionId":"`+testutil.ActionConfirm+`","score":0.8}]}`)
	})

	resp, err := m.Score(context.Background(), model.ScoreRequest{Text: "cheese", Definitions: testutil.PizzaDefinitions()})
	require.NoError(t, err)

	best, ok := resp.Best()
	require.True(t, ok)
	assert.Equal(t, testutil.ActionConfirm, best.ActionID)
}

func TestModel_Extract(t *testing.T) {
	m := newTestModel(t, func(body map[string]any) string {
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])

		return toolCall(model.ExtractToolName, `{"entities":[{"entityName":"toppings","text":"olives"}]}`)
	})

	resp, err := m.Extract(context.Background(), model.ExtractRequest{Text: "add olives", Definitions: testutil.PizzaDefinitions()})
	require.NoError(t, err)
	require.Len(t, resp.PredictedEntities, 1)
	assert.Equal(t, testutil.ToppingsID, resp.PredictedEntities[0].EntityID)
	assert.Equal(t, 4, resp.PredictedEntities[0].StartIndex)
}

func TestModel_ContentFallback(t *testing.T) {
	m := newTestModel(t, func(map[string]any) string {
		return completion(`{"role":"assistant","content":"{\"entities\":[]}"}`)
	})

	resp, err := m.Extract(context.Background(), model.ExtractRequest{Text: "hello", Definitions: testutil.PizzaDefinitions()})
	require.NoError(t, err)
	assert.Empty(t, resp.PredictedEntities)
}

func TestModel_NoAnswer(t *testing.T) {
	m := newTestModel(t, func(map[string]any) string {
		return completion(`{"role":"assistant","content":""}`)
	})

	_, err := m.Score(context.Background(), model.ScoreRequest{Definitions: testutil.PizzaDefinitions()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), model.ScoreToolName)
}

func TestModel_Info(t *testing.T) {
	info := NewModelFromClient(nil).Info()
	assert.Equal(t, "openai", info.Provider)
	assert.Equal(t, openai.ChatModelGPT4oMini, info.Name)
}
