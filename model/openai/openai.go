// Package openai provides an Extractor and Scorer backed by the OpenAI Chat
// Completions API. Structured output is obtained through function calling:
// the model is offered a single tool whose arguments carry the answer.
package openai

import (
	"context"
	"fmt"

	"github.com/hupe1980/dialogmesh/model"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI model adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Compile-time assertions.
var (
	_ model.Extractor = (*Model)(nil)
	_ model.Scorer    = (*Model)(nil)
)

// Model wraps the OpenAI Chat Completions API behind model.Extractor and
// model.Scorer.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0,
		MaxCompletionTokens: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Extract implements model.Extractor.
func (m *Model) Extract(ctx context.Context, req model.ExtractRequest) (*model.ExtractResponse, error) {
	prompt, err := model.ExtractPrompt(req)
	if err != nil {
		return nil, err
	}

	raw, err := m.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return model.ParseExtractOutput(raw, req)
}

// Score implements model.Scorer.
func (m *Model) Score(ctx context.Context, req model.ScoreRequest) (*model.ScoreResponse, error) {
	prompt, err := model.ScorePrompt(req)
	if err != nil {
		return nil, err
	}

	raw, err := m.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return model.ParseScoreOutput(raw, req)
}

// complete sends the prompt and returns the arguments of the requested tool
// call. A plain JSON message body is accepted when the model answers without
// calling the tool.
func (m *Model) complete(ctx context.Context, prompt model.Prompt) ([]byte, error) {
	resp, err := m.client.Chat.Completions.New(ctx, m.buildParams(prompt))
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	msg := resp.Choices[0].Message
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == prompt.ToolName {
			return []byte(tc.Function.Arguments), nil
		}
	}

	if msg.Content != "" {
		return []byte(msg.Content), nil
	}

	return nil, fmt.Errorf("openai response carried no %s call", prompt.ToolName)
}

func (m *Model) buildParams(prompt model.Prompt) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
		Model:               m.opts.Model,
		Temperature:         openai.Float(m.opts.Temperature),
		MaxCompletionTokens: openai.Int(m.opts.MaxCompletionTokens),
		Tools: []openai.ChatCompletionToolParam{{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        prompt.ToolName,
				Description: openai.String("Return the structured answer."),
				Parameters:  prompt.ToolSchema,
			},
		}},
	}
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     m.opts.Model,
		Provider: "openai",
	}
}
