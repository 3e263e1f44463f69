package core

import (
	"errors"
	"testing"
)

func TestResolveEntityRef(t *testing.T) {
	defs := Definitions{Entities: []Entity{
		{ID: "pos", Name: "color", Type: EntityTypeLUIS, IsBucket: true, NegativeID: "neg"},
		{ID: "neg", Name: "~color", Type: EntityTypeLUIS, IsBucket: true, PositiveID: "pos"},
		{ID: "orphan", Name: "~size", Type: EntityTypeLUIS, PositiveID: "missing"},
	}}

	pos, _ := defs.EntityByID("pos")
	if ref := ResolveEntityRef(pos, defs); ref.IsNegative() || ref.Name() != "color" {
		t.Fatalf("unexpected ref %v", ref)
	}

	neg, _ := defs.EntityByID("neg")
	ref := ResolveEntityRef(neg, defs)
	if !ref.IsNegative() || ref.Name() != "color" || ref.String() != "~color" {
		t.Fatalf("unexpected negative ref %v", ref)
	}

	orphan, _ := defs.EntityByID("orphan")
	if ref := ResolveEntityRef(orphan, defs); ref.IsNegative() {
		t.Fatalf("orphan negative should not resolve to a counterpart: %v", ref)
	}
}

func TestEntityTypeIsPrebuilt(t *testing.T) {
	if EntityTypeLUIS.IsPrebuilt() || EntityTypeLocal.IsPrebuilt() {
		t.Fatal("LUIS and LOCAL are not prebuilt")
	}
	if !EntityType("builtin.number").IsPrebuilt() {
		t.Fatal("builtin types are prebuilt")
	}
}

func TestErrorKinds(t *testing.T) {
	err := &StorageError{Op: "read", Key: "k", Err: errors.New("boom")}
	if !errors.Is(err, ErrStorage) {
		t.Fatal("StorageError should match ErrStorage")
	}
	if !errors.Is(&ActionResolutionError{ActionID: "a"}, ErrActionResolution) {
		t.Fatal("ActionResolutionError should match ErrActionResolution")
	}
	if !errors.Is(&UnknownEntityError{Name: "x"}, ErrUnknownEntity) {
		t.Fatal("UnknownEntityError should match ErrUnknownEntity")
	}
}

func TestResponseToActivity(t *testing.T) {
	from := ChannelAccount{ID: "bot", Name: "bot"}
	if (&Response{}).ToActivity("id", from) != nil {
		t.Fatal("empty response should not produce an activity")
	}
	a := TextResponse("hi").ToActivity("id", from)
	if a == nil || a.Text != "hi" || a.Type != ActivityTypeMessage || a.ID != "id" {
		t.Fatalf("unexpected activity %+v", a)
	}
}

func TestDefinitionsValidate(t *testing.T) {
	valid := Definitions{
		Entities: []Entity{
			{ID: "pos", Name: "color", Type: EntityTypeLUIS, NegativeID: "neg"},
			{ID: "neg", Name: "~color", Type: EntityTypeLUIS, PositiveID: "pos"},
		},
		Actions: []Action{
			{ID: "a1", Kind: ActionText, Payload: "hi"},
			{ID: "a2", Kind: ActionLocalAPI, Payload: "lookup"},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := map[string]Definitions{
		"duplicate entity id":   {Entities: []Entity{{ID: "x", Name: "a"}, {ID: "x", Name: "b"}}},
		"duplicate entity name": {Entities: []Entity{{ID: "x", Name: "a"}, {ID: "y", Name: "a"}}},
		"missing name":          {Entities: []Entity{{ID: "x"}}},
		"dangling pair":         {Entities: []Entity{{ID: "x", Name: "a", NegativeID: "gone"}}},
		"duplicate action":      {Actions: []Action{{ID: "a", Kind: ActionText}, {ID: "a", Kind: ActionCard}}},
		"api without callback":  {Actions: []Action{{ID: "a", Kind: ActionLocalAPI}}},
		"unknown action type":   {Actions: []Action{{ID: "a", Kind: "API_REMOTE"}}},
	}
	for name, defs := range tests {
		t.Run(name, func(t *testing.T) {
			if err := defs.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}
