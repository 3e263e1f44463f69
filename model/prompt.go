package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/util"
)

// Tool names the provider adapters expose to force structured output.
const (
	ExtractToolName = "extract_entities"
	ScoreToolName   = "score_actions"
)

const extractInstructions = `You label entities in a single user utterance for a task-oriented dialog system.
Only use entity names from the provided list and copy the matching span of the
utterance verbatim. Return every occurrence. Respond by calling the ` + ExtractToolName + ` tool.`

const scoreInstructions = `You choose the next bot action for a task-oriented dialog system.
Score every provided action between 0 and 1 given the user's last utterance and
the entities currently held in memory. Respond by calling the ` + ScoreToolName + ` tool.`

// ExtractOutput is the structured answer expected from a provider.
type ExtractOutput struct {
	Entities []ExtractedEntity `json:"entities" description:"entities found in the utterance"`
}

// ExtractedEntity is a single labeled span.
type ExtractedEntity struct {
	EntityName string `json:"entityName" description:"name of a declared entity"`
	Text       string `json:"text" description:"verbatim span from the utterance"`
}

// ScoreOutput is the structured answer expected from a provider.
type ScoreOutput struct {
	Actions []ScoredAction `json:"actions" description:"every action with its score"`
}

// Prompt is a provider-neutral instruction/input pair plus the tool the
// model must answer through.
type Prompt struct {
	System     string
	User       string
	ToolName   string
	ToolSchema map[string]any
}

type extractEntityView struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Multi   bool   `json:"multivalue,omitempty"`
	Negates string `json:"negates,omitempty"`
}

type scoreActionView struct {
	ID       string `json:"actionId"`
	Kind     string `json:"kind"`
	Payload  string `json:"payload"`
	Terminal bool   `json:"waitsForUser"`
}

// ExtractPrompt builds the extraction prompt. LOCAL entities are never
// offered since only callbacks fill them.
func ExtractPrompt(req ExtractRequest) (Prompt, error) {
	entities := make([]extractEntityView, 0, len(req.Definitions.Entities))
	for _, e := range req.Definitions.Entities {
		if e.Type == core.EntityTypeLocal {
			continue
		}

		view := extractEntityView{Name: e.Name, Type: string(e.Type), Multi: e.IsBucket}
		if e.IsNegative() {
			view.Negates = req.Definitions.EntityName(e.PositiveID)
		}

		entities = append(entities, view)
	}

	input, err := json.Marshal(map[string]any{
		"utterance": req.Text,
		"entities":  entities,
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to encode extract prompt: %w", err)
	}

	return Prompt{
		System:     extractInstructions,
		User:       string(input),
		ToolName:   ExtractToolName,
		ToolSchema: util.CreateSchema(ExtractOutput{}),
	}, nil
}

// ScorePrompt builds the scoring prompt.
func ScorePrompt(req ScoreRequest) (Prompt, error) {
	actions := make([]scoreActionView, 0, len(req.Definitions.Actions))
	for _, a := range req.Definitions.Actions {
		actions = append(actions, scoreActionView{
			ID:       a.ID,
			Kind:     string(a.Kind),
			Payload:  a.Payload,
			Terminal: a.IsTerminal,
		})
	}

	memory := make(map[string][]string, len(req.FilledEntities))
	for _, f := range req.FilledEntities {
		name := req.Definitions.EntityName(f.EntityID)
		for _, v := range f.Values {
			memory[name] = append(memory[name], v.Text())
		}
	}

	input, err := json.Marshal(map[string]any{
		"utterance": req.Text,
		"memory":    memory,
		"actions":   actions,
		"step":      req.Step,
	})
	if err != nil {
		return Prompt{}, fmt.Errorf("failed to encode score prompt: %w", err)
	}

	return Prompt{
		System:     scoreInstructions,
		User:       string(input),
		ToolName:   ScoreToolName,
		ToolSchema: util.CreateSchema(ScoreOutput{}),
	}, nil
}

// ParseExtractOutput decodes a provider answer into predicted entities.
// Unknown or LOCAL entity names and spans missing from the text are dropped.
func ParseExtractOutput(raw []byte, req ExtractRequest) (*ExtractResponse, error) {
	if err := validateOutput(raw, util.CreateSchema(ExtractOutput{})); err != nil {
		return nil, err
	}

	var out ExtractOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode extract output: %w", err)
	}

	lower := strings.ToLower(req.Text)
	resp := &ExtractResponse{Text: req.Text, PredictedEntities: []core.PredictedEntity{}}

	for _, e := range out.Entities {
		def, ok := req.Definitions.EntityByName(e.EntityName)
		if !ok || def.Type == core.EntityTypeLocal || e.Text == "" {
			continue
		}

		start := strings.Index(lower, strings.ToLower(e.Text))
		if start < 0 {
			continue
		}

		end := start + len(e.Text)
		p := core.PredictedEntity{
			EntityID:   def.ID,
			EntityText: req.Text[start:end],
			StartIndex: start,
			EndIndex:   end,
		}

		if def.Type.IsPrebuilt() {
			p.BuiltinType = string(def.Type)
		}

		resp.PredictedEntities = append(resp.PredictedEntities, p)
	}

	return resp, nil
}

// ParseScoreOutput decodes a provider answer into scored actions ordered by
// descending score. Unknown action ids are dropped and scores are clamped to
// [0, 1].
func ParseScoreOutput(raw []byte, req ScoreRequest) (*ScoreResponse, error) {
	if err := validateOutput(raw, util.CreateSchema(ScoreOutput{})); err != nil {
		return nil, err
	}

	var out ScoreOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode score output: %w", err)
	}

	resp := &ScoreResponse{ScoredActions: []ScoredAction{}}
	for _, a := range out.Actions {
		if _, ok := req.Definitions.ActionByID(a.ActionID); !ok {
			continue
		}

		a.Score = min(max(a.Score, 0), 1)
		resp.ScoredActions = append(resp.ScoredActions, a)
	}

	SortScoredActions(resp.ScoredActions)

	return resp, nil
}

func validateOutput(raw []byte, schema map[string]any) error {
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return fmt.Errorf("model output is not a JSON object: %w", err)
	}

	if err := util.ValidateParameters(params, schema); err != nil {
		return fmt.Errorf("invalid model output: %w", err)
	}

	return nil
}
