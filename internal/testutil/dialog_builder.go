package testutil

import "github.com/hupe1980/dialogmesh/core"

// Entity ids and action ids of the sample definitions.
const (
	ToppingsID    = "ent-toppings"
	NotToppingsID = "ent-not-toppings"
	NameID        = "ent-name"
	CountID       = "ent-count"
	OrderID       = "ent-order"

	ActionAskToppings = "act-ask-toppings"
	ActionConfirm     = "act-confirm"
	ActionCheckout    = "act-checkout"
	ActionCard        = "act-card"
)

// PizzaDefinitions returns a small model: a negatable toppings bucket, a
// scalar name, a prebuilt number, a local order entity, and one action of
// every kind.
func PizzaDefinitions() core.Definitions {
	return core.Definitions{
		Entities: []core.Entity{
			{ID: ToppingsID, Name: "toppings", Type: core.EntityTypeLUIS, IsBucket: true, NegativeID: NotToppingsID},
			{ID: NotToppingsID, Name: "~toppings", Type: core.EntityTypeLUIS, IsBucket: true, PositiveID: ToppingsID},
			{ID: NameID, Name: "name", Type: core.EntityTypeLUIS},
			{ID: CountID, Name: "count", Type: core.EntityType("builtin.number")},
			{ID: OrderID, Name: "order", Type: core.EntityTypeLocal},
		},
		Actions: []core.Action{
			{ID: ActionAskToppings, Kind: core.ActionText, Payload: "What would you like on your pizza[, $name]?", IsTerminal: true},
			{ID: ActionConfirm, Kind: core.ActionText, Payload: "You have $toppings on your pizza.", IsTerminal: false},
			{ID: ActionCheckout, Kind: core.ActionLocalAPI, Payload: "checkout", Arguments: []core.ActionArgument{
				{Parameter: "toppings", Value: "$toppings"},
				{Parameter: "name", Value: "$name"},
			}, IsTerminal: true},
			{ID: ActionCard, Kind: core.ActionCard, Payload: `{"type":"AdaptiveCard","body":[{"type":"TextBlock","text":"{{.toppings}}"}]}`, IsTerminal: true},
		},
	}
}

// DialogBuilder helps construct train dialogs with fluent chaining.
// Example:
//
//	td := NewDialogBuilder("td-1").Definitions(PizzaDefinitions()).
//		Round("cheese please", []core.PredictedEntity{Label(ToppingsID, "cheese")},
//			Step(ActionConfirm, Filled(ToppingsID, "cheese"))).
//		Build()
type DialogBuilder struct {
	dialog core.TrainDialog
}

// NewDialogBuilder creates a builder for a dialog with the given id.
func NewDialogBuilder(id string) *DialogBuilder {
	return &DialogBuilder{dialog: core.TrainDialog{ID: id}}
}

// Definitions sets the model definitions (chainable).
func (b *DialogBuilder) Definitions(defs core.Definitions) *DialogBuilder {
	b.dialog.Definitions = defs
	return b
}

// Round appends a round with one text variation (chainable).
func (b *DialogBuilder) Round(text string, labels []core.PredictedEntity, steps ...core.ScorerStep) *DialogBuilder {
	b.dialog.Rounds = append(b.dialog.Rounds, core.Round{
		ExtractorStep: core.ExtractorStep{TextVariations: []core.TextVariation{{Text: text, LabelEntities: labels}}},
		ScorerSteps:   steps,
	})
	return b
}

// Build returns the dialog.
func (b *DialogBuilder) Build() core.TrainDialog { return b.dialog }

// Step builds a scorer step labeled with actionID and its recorded entities.
func Step(actionID string, filled ...core.FilledEntity) core.ScorerStep {
	if filled == nil {
		filled = []core.FilledEntity{}
	}
	return core.ScorerStep{LabelAction: actionID, Input: core.ScoreInput{FilledEntities: filled}}
}

// Filled builds a filled entity with plain text values.
func Filled(entityID string, values ...string) core.FilledEntity {
	fe := core.FilledEntity{EntityID: entityID, Values: make([]core.MemoryValue, 0, len(values))}
	for _, v := range values {
		fe.Values = append(fe.Values, core.MemoryValue{UserText: v})
	}
	return fe
}

// Label builds a predicted entity occurrence.
func Label(entityID, text string) core.PredictedEntity {
	return core.PredictedEntity{EntityID: entityID, EntityText: text}
}
