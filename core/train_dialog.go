package core

// TextVariation is one phrasing of a user input with its labeled entities.
type TextVariation struct {
	Text          string            `json:"text" yaml:"text"`
	LabelEntities []PredictedEntity `json:"labelEntities,omitempty" yaml:"labelEntities,omitempty"`
}

// ExtractorStep holds the recorded user input of a round.
type ExtractorStep struct {
	TextVariations []TextVariation `json:"textVariations" yaml:"textVariations"`
}

// ScoreInput is the entity state the scorer saw when an action was labeled.
type ScoreInput struct {
	FilledEntities []FilledEntity `json:"filledEntities" yaml:"filledEntities"`
}

// ScorerStep is one labeled bot turn.
type ScorerStep struct {
	LabelAction string     `json:"labelAction" yaml:"labelAction"`
	Input       ScoreInput `json:"input" yaml:"input"`
}

// Round is a user input followed by zero or more bot turns.
type Round struct {
	ExtractorStep ExtractorStep `json:"extractorStep" yaml:"extractorStep"`
	ScorerSteps   []ScorerStep  `json:"scorerSteps" yaml:"scorerSteps"`
}

// UserText returns the primary text variation of the round.
func (r Round) UserText() string {
	if len(r.ExtractorStep.TextVariations) == 0 {
		return ""
	}
	return r.ExtractorStep.TextVariations[0].Text
}

// RecordedEntities returns the entity state recorded for the first scorer
// step of the round, or nil when the round has no scorer steps.
func (r Round) RecordedEntities() []FilledEntity {
	if len(r.ScorerSteps) == 0 {
		return nil
	}
	return r.ScorerSteps[0].Input.FilledEntities
}

// TrainDialog is a recorded training conversation together with the model
// definitions it was labeled against.
type TrainDialog struct {
	ID          string      `json:"trainDialogId" yaml:"trainDialogId"`
	Definitions Definitions `json:"definitions" yaml:"definitions"`
	Rounds      []Round     `json:"rounds" yaml:"rounds"`
}

// DialogMode describes what a reconstructed conversation waits for.
type DialogMode string

const (
	// DialogModeWait means the last action was terminal; the bot waits for
	// user input.
	DialogModeWait DialogMode = "Wait"
	// DialogModeScorer means the conversation stopped mid-scoring.
	DialogModeScorer DialogMode = "Scorer"
)
