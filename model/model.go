package model

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/dialogmesh/core"
)

// ExtractRequest carries the user's text and the entities the model may label.
type ExtractRequest struct {
	Text        string           `json:"text"`
	Definitions core.Definitions `json:"definitions"`
}

// ExtractResponse is the extraction result for one user utterance.
type ExtractResponse struct {
	Text              string                 `json:"text"`
	PredictedEntities []core.PredictedEntity `json:"predictedEntities"`
}

// ScoreRequest carries the state the scorer ranks actions against.
type ScoreRequest struct {
	Text           string              `json:"text"`
	FilledEntities []core.FilledEntity `json:"filledEntities"`
	Definitions    core.Definitions    `json:"definitions"`
	// Step is the zero-based position inside the current turn's scoring loop.
	Step int `json:"step"`
}

// ScoredAction pairs an action id with its score in [0, 1].
type ScoredAction struct {
	ActionID string  `json:"actionId"`
	Score    float64 `json:"score"`
}

// ScoreResponse lists candidate actions ordered by descending score.
type ScoreResponse struct {
	ScoredActions []ScoredAction `json:"scoredActions"`
}

// Best returns the highest scored action.
func (r *ScoreResponse) Best() (ScoredAction, bool) {
	if r == nil || len(r.ScoredActions) == 0 {
		return ScoredAction{}, false
	}

	return r.ScoredActions[0], true
}

// SortScoredActions orders actions by descending score, keeping the
// provider's order for ties.
func SortScoredActions(actions []ScoredAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Score > actions[j].Score
	})
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Extractor labels entities in user text.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)
}

// Scorer ranks the defined actions for the current turn state.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error)
}

// Compile-time assertions.
var (
	_ Extractor = (*MockModel)(nil)
	_ Scorer    = (*MockModel)(nil)
)

// MockModel is a scripted in-memory Extractor and Scorer useful for tests
// and examples. Extractions are keyed by lower-cased text; scorer answers are
// consumed in order and the last one repeats.
type MockModel struct {
	info Info

	mu          sync.Mutex
	extractions map[string][]core.PredictedEntity
	scores      [][]ScoredAction
	extractCall int
	scoreCalls  []ScoreRequest
	scoreNext   int
}

// NewMockModel constructs an empty MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:        Info{Name: name, Provider: "mock"},
		extractions: make(map[string][]core.PredictedEntity),
	}
}

// AddExtraction registers the entities predicted for text.
func (m *MockModel) AddExtraction(text string, predicted ...core.PredictedEntity) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.extractions[strings.ToLower(text)] = predicted
}

// AddScore appends one scripted scorer answer. With a single action id the
// answer scores it 1.
func (m *MockModel) AddScore(actionIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	scored := make([]ScoredAction, 0, len(actionIDs))
	for i, id := range actionIDs {
		scored = append(scored, ScoredAction{ActionID: id, Score: 1 / float64(i+1)})
	}

	m.scores = append(m.scores, scored)
}

// Extract implements Extractor.
func (m *MockModel) Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.extractCall++

	return &ExtractResponse{
		Text:              req.Text,
		PredictedEntities: append([]core.PredictedEntity(nil), m.extractions[strings.ToLower(req.Text)]...),
	}, nil
}

// Score implements Scorer.
func (m *MockModel) Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.scoreCalls = append(m.scoreCalls, req)

	if len(m.scores) == 0 {
		return nil, fmt.Errorf("mock scorer has no scripted answer for call %d", len(m.scoreCalls)-1)
	}

	answer := m.scoreNext
	if answer >= len(m.scores) {
		answer = len(m.scores) - 1
	} else {
		m.scoreNext++
	}

	return &ScoreResponse{ScoredActions: append([]ScoredAction(nil), m.scores[answer]...)}, nil
}

// ExtractCalls returns how many times Extract ran.
func (m *MockModel) ExtractCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.extractCall
}

// ScoreCalls returns the requests Score received.
func (m *MockModel) ScoreCalls() []ScoreRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]ScoreRequest(nil), m.scoreCalls...)
}

// Info returns the mock's metadata.
func (m *MockModel) Info() Info { return m.info }
