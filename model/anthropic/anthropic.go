// Package anthropic provides an Extractor and Scorer backed by the Anthropic
// Messages API, using tool use to obtain structured answers.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/dialogmesh/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Compile-time assertions.
var (
	_ model.Extractor = (*Model)(nil)
	_ model.Scorer    = (*Model)(nil)
)

// Model wraps the Anthropic Messages API behind model.Extractor and
// model.Scorer.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0,
		MaxTokens:   1024,
	}
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
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

func (m *Model) complete(ctx context.Context, prompt model.Prompt) ([]byte, error) {
	params := anthropic.MessageNewParams{
		Model: m.opts.Model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
		System:      []anthropic.TextBlockParam{{Text: prompt.System}},
		Tools:       []anthropic.ToolUnionParam{buildTool(prompt)},
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder

	for _, block := range resp.Content {
		switch block.Type {
		case "tool_use":
			toolBlock := block.AsToolUse()
			if toolBlock.Name != prompt.ToolName {
				continue
			}

			args, err := json.Marshal(toolBlock.Input)
			if err != nil {
				return nil, fmt.Errorf("failed to encode tool input: %w", err)
			}

			return args, nil
		case "text":
			text.WriteString(block.AsText().Text)
		}
	}

	if text.Len() > 0 {
		return []byte(text.String()), nil
	}

	return nil, fmt.Errorf("anthropic response carried no %s call", prompt.ToolName)
}

// buildTool converts the prompt's output schema into an Anthropic tool.
func buildTool(prompt model.Prompt) anthropic.ToolUnionParam {
	inputSchema := anthropic.ToolInputSchemaParam{
		Type: constant.Object("object"),
	}

	if properties, exists := prompt.ToolSchema["properties"]; exists {
		inputSchema.Properties = properties
	}

	if required, ok := prompt.ToolSchema["required"].([]string); ok {
		inputSchema.Required = required
	}

	return anthropic.ToolUnionParamOfTool(inputSchema, prompt.ToolName)
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: "anthropic",
	}
}
