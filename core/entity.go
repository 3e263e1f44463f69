package core

import (
	"fmt"
	"strings"
)

// EntityType classifies who may fill an entity.
type EntityType string

const (
	// EntityTypeLUIS marks entities filled by the extractor.
	EntityTypeLUIS EntityType = "LUIS"
	// EntityTypeLocal marks entities filled only by bot code.
	EntityTypeLocal EntityType = "LOCAL"
)

// IsPrebuilt reports whether the type is a prebuilt (builtin.*) entity.
func (t EntityType) IsPrebuilt() bool {
	return t != EntityTypeLUIS && t != EntityTypeLocal
}

// Entity is the definition of a named information slot.
//
// A negatable entity has a paired negative entity: the negative carries
// PositiveID pointing back at the positive definition.
type Entity struct {
	ID         string     `json:"entityId" yaml:"entityId"`
	Name       string     `json:"entityName" yaml:"entityName"`
	Type       EntityType `json:"entityType" yaml:"entityType"`
	IsBucket   bool       `json:"isMultivalue" yaml:"isMultivalue"`
	PositiveID string     `json:"positiveId,omitempty" yaml:"positiveId,omitempty"`
	NegativeID string     `json:"negativeId,omitempty" yaml:"negativeId,omitempty"`
}

// IsNegative reports whether the entity is the negation of another one.
func (e Entity) IsNegative() bool { return e.PositiveID != "" }

// EntityRef names an entity either directly or as the negation of a
// positive entity. Negative refs never address memory themselves; forgetting
// through one removes values from the positive entity.
type EntityRef struct {
	name     string
	negative bool
}

// Positive references an entity by its own name.
func Positive(name string) EntityRef { return EntityRef{name: name} }

// Negative references the negation of the entity named positiveName.
func Negative(positiveName string) EntityRef { return EntityRef{name: positiveName, negative: true} }

// IsNegative reports whether the ref is a Negative variant.
func (r EntityRef) IsNegative() bool { return r.negative }

// Name returns the positive entity name the ref resolves to.
func (r EntityRef) Name() string { return r.name }

func (r EntityRef) String() string {
	if r.negative {
		return "~" + r.name
	}
	return r.name
}

// ResolveEntityRef turns a definition into a ref. A negative entity resolves
// to Negative(positive name) when its counterpart is defined. When the
// counterpart is missing the ref stays Positive on the entity's own name.
func ResolveEntityRef(e Entity, defs Definitions) EntityRef {
	if !e.IsNegative() {
		return Positive(e.Name)
	}
	if pos, ok := defs.EntityByID(e.PositiveID); ok {
		return Negative(pos.Name)
	}
	return Positive(e.Name)
}

// ActionKind selects how an action produces its bot response.
type ActionKind string

const (
	// ActionText substitutes entity values into a plain-text payload.
	ActionText ActionKind = "TEXT"
	// ActionCard renders a card template.
	ActionCard ActionKind = "CARD"
	// ActionLocalAPI invokes a locally registered callback.
	ActionLocalAPI ActionKind = "API_LOCAL"
)

// ActionArgument binds a callback or template parameter to a value that may
// reference entities ($name).
type ActionArgument struct {
	Parameter string `json:"parameter" yaml:"parameter"`
	Value     string `json:"value" yaml:"value"`
}

// Action is a bot response the scorer can select.
type Action struct {
	ID         string           `json:"actionId" yaml:"actionId"`
	Kind       ActionKind       `json:"actionType" yaml:"actionType"`
	Payload    string           `json:"payload" yaml:"payload"`
	Arguments  []ActionArgument `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	IsTerminal bool             `json:"isTerminal" yaml:"isTerminal"`
}

// Definitions bundles the entities and actions of a trained model.
type Definitions struct {
	Entities []Entity `json:"entities" yaml:"entities"`
	Actions  []Action `json:"actions" yaml:"actions"`
}

// EntityByID looks up an entity definition by id.
func (d Definitions) EntityByID(id string) (Entity, bool) {
	for _, e := range d.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// EntityByName looks up an entity definition by name.
func (d Definitions) EntityByName(name string) (Entity, bool) {
	for _, e := range d.Entities {
		if e.Name == name {
			return e, true
		}
	}
	return Entity{}, false
}

// ActionByID looks up an action definition by id.
func (d Definitions) ActionByID(id string) (Action, bool) {
	for _, a := range d.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// EntityName returns the name of the entity with the given id or the id
// itself when unknown.
func (d Definitions) EntityName(id string) string {
	if e, ok := d.EntityByID(id); ok {
		return e.Name
	}
	return id
}

// Validate checks ids and names are unique, entity pairings resolve and
// local API actions name a callback. Violations wrap ErrConfiguration.
func (d Definitions) Validate() error {
	ids := make(map[string]bool, len(d.Entities))
	names := make(map[string]bool, len(d.Entities))

	for _, e := range d.Entities {
		switch {
		case e.ID == "" || e.Name == "":
			return fmt.Errorf("%w: entity %q needs an id and a name", ErrConfiguration, e.ID+e.Name)
		case ids[e.ID]:
			return fmt.Errorf("%w: duplicate entity id %q", ErrConfiguration, e.ID)
		case names[e.Name]:
			return fmt.Errorf("%w: duplicate entity name %q", ErrConfiguration, e.Name)
		}
		ids[e.ID] = true
		names[e.Name] = true
	}

	for _, e := range d.Entities {
		for _, ref := range []string{e.PositiveID, e.NegativeID} {
			if ref != "" && !ids[ref] {
				return fmt.Errorf("%w: entity %q references unknown entity %q", ErrConfiguration, e.Name, ref)
			}
		}
	}

	actions := make(map[string]bool, len(d.Actions))
	for _, a := range d.Actions {
		if a.ID == "" {
			return fmt.Errorf("%w: action without id", ErrConfiguration)
		}
		if actions[a.ID] {
			return fmt.Errorf("%w: duplicate action id %q", ErrConfiguration, a.ID)
		}
		actions[a.ID] = true

		switch a.Kind {
		case ActionText, ActionCard:
		case ActionLocalAPI:
			if a.Payload == "" {
				return fmt.Errorf("%w: action %q does not name a callback", ErrConfiguration, a.ID)
			}
		default:
			return fmt.Errorf("%w: action %q has unknown type %q", ErrConfiguration, a.ID, a.Kind)
		}
	}

	return nil
}

// PredictedEntity is an entity occurrence found in user text.
type PredictedEntity struct {
	EntityID    string         `json:"entityId" yaml:"entityId"`
	EntityText  string         `json:"entityText" yaml:"entityText"`
	BuiltinType string         `json:"builtinType,omitempty" yaml:"builtinType,omitempty"`
	Resolution  map[string]any `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	StartIndex  int            `json:"startCharIndex,omitempty" yaml:"startCharIndex,omitempty"`
	EndIndex    int            `json:"endCharIndex,omitempty" yaml:"endCharIndex,omitempty"`
}

// normalize lower-cases text for case-insensitive comparisons.
func normalize(s string) string { return strings.ToLower(s) }
