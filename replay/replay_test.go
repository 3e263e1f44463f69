package replay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/memory"
)

func newMemory() *memory.EntityMemory {
	return memory.NewEntityMemory(memory.NewStore(testutil.NewCountingStorage()).Scoped("scope"), nil)
}

func pizzaDialog() core.TrainDialog {
	return testutil.NewDialogBuilder("td-1").
		Definitions(testutil.PizzaDefinitions()).
		Round("hi, I am Alice", []core.PredictedEntity{testutil.Label(testutil.NameID, "Alice")},
			testutil.Step(testutil.ActionAskToppings, testutil.Filled(testutil.NameID, "Alice"))).
		Round("cheese please", []core.PredictedEntity{testutil.Label(testutil.ToppingsID, "cheese")},
			testutil.Step(testutil.ActionConfirm,
				testutil.Filled(testutil.NameID, "Alice"),
				testutil.Filled(testutil.ToppingsID, "cheese")),
			testutil.Step(testutil.ActionCheckout,
				testutil.Filled(testutil.NameID, "Alice"),
				testutil.Filled(testutil.ToppingsID, "cheese"))).
		Build()
}

func newEngine() (*Engine, *engine.Engine) {
	actions := engine.New()
	actions.Callbacks().AddCallback("checkout", func(ctx context.Context, m *memory.Manager, args ...string) (*core.Response, error) {
		return core.TextResponse("Ordering " + args[0] + " for " + args[1]), nil
	})
	return New(actions), actions
}

func TestGetHistory_Activities(t *testing.T) {
	e, _ := newEngine()

	h, err := e.GetHistory(context.Background(), pizzaDialog(), newMemory(), HistoryOptions{UserID: "u1", UserName: "Alice"})
	require.NoError(t, err)

	texts := make([]string, 0, len(h.Activities))
	for _, a := range h.Activities {
		texts = append(texts, a.Text)
	}
	assert.Equal(t, []string{
		"hi, I am Alice",
		"What would you like on your pizza, Alice?",
		"cheese please",
		"You have cheese on your pizza.",
		"Ordering cheese for Alice",
	}, texts)

	user := h.Activities[2]
	assert.Equal(t, "u1", user.From.ID)
	assert.Equal(t, core.SenderUser, user.ChannelData.SenderType)
	assert.Equal(t, 1, user.ChannelData.RoundIndex)
	assert.NotEmpty(t, user.ChannelData.ClientActivityID)

	bot := h.Activities[4]
	assert.Equal(t, TrainerAccount, bot.From)
	assert.Equal(t, core.SenderBot, bot.ChannelData.SenderType)
	assert.Equal(t, 1, bot.ChannelData.RoundIndex)
	assert.Equal(t, 1, bot.ChannelData.ScoreIndex)

	assert.Equal(t, core.DialogModeWait, h.DialogMode)
	assert.Empty(t, h.Discrepancies)
	assert.Nil(t, h.Memories)
}

func TestGetHistory_Deterministic(t *testing.T) {
	e, _ := newEngine()
	dialog := pizzaDialog()

	first, err := e.GetHistory(context.Background(), dialog, newMemory(), HistoryOptions{UserID: "u1"})
	require.NoError(t, err)
	second, err := e.GetHistory(context.Background(), dialog, newMemory(), HistoryOptions{UserID: "u1"})
	require.NoError(t, err)

	a, err := json.Marshal(first.Activities)
	require.NoError(t, err)
	b, err := json.Marshal(second.Activities)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))

	ids := map[string]bool{}
	for _, act := range first.Activities {
		assert.False(t, ids[act.ID], "activity ids are unique")
		ids[act.ID] = true
	}
}

func TestGetHistory_UpdateState(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine()
	mem := newMemory()
	require.NoError(t, mem.RememberEntity(ctx, "order", testutil.OrderID, "stale", false))

	h, err := e.GetHistory(ctx, pizzaDialog(), mem, HistoryOptions{UpdateState: true})
	require.NoError(t, err)
	assert.Empty(t, h.Discrepancies)
	assert.Len(t, h.Activities, 5)

	require.Len(t, h.PrevMemories, 1)
	assert.Equal(t, "name", h.PrevMemories[0].EntityName)

	require.Len(t, h.Memories, 2)
	assert.Equal(t, "name", h.Memories[0].EntityName)
	assert.Equal(t, "toppings", h.Memories[1].EntityName)
}

func TestGetHistory_Discrepancy(t *testing.T) {
	ctx := context.Background()
	e, actions := newEngine()
	actions.Callbacks().SetEntityDetection(func(ctx context.Context, text string, predicted []core.PredictedEntity, m *memory.Manager) error {
		if text == "cheese please" {
			return m.RememberEntity("name", "Bob")
		}
		return nil
	})

	dialog := pizzaDialog()
	dialog.Rounds = append(dialog.Rounds, core.Round{
		ExtractorStep: core.ExtractorStep{TextVariations: []core.TextVariation{{Text: "thanks"}}},
		ScorerSteps:   []core.ScorerStep{testutil.Step(testutil.ActionConfirm)},
	})

	h, err := e.GetHistory(ctx, dialog, newMemory(), HistoryOptions{UpdateState: true})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"",
		"User Input Step:",
		"cheese please",
		"",
		"Original Entities:",
		"name = (Alice)",
		"toppings = (cheese)",
		"",
		"New Entities:",
		"name = (Bob)",
		"toppings = (cheese)",
	}, h.Discrepancies)

	// the divergent round keeps its user activity, later rounds are dropped
	require.Len(t, h.Activities, 3)
	assert.Equal(t, "cheese please", h.Activities[2].Text)
	assert.Equal(t, core.DialogModeWait, h.DialogMode)
}

func TestGetHistory_IgnoreLastExtraction(t *testing.T) {
	ctx := context.Background()
	e, actions := newEngine()
	actions.Callbacks().SetEntityDetection(func(ctx context.Context, text string, predicted []core.PredictedEntity, m *memory.Manager) error {
		if text == "cheese please" {
			return m.RememberEntity("name", "Bob")
		}
		return nil
	})

	h, err := e.GetHistory(ctx, pizzaDialog(), newMemory(), HistoryOptions{UpdateState: true, IgnoreLastExtraction: true})
	require.NoError(t, err)
	assert.Empty(t, h.Discrepancies)
	assert.Len(t, h.Activities, 5)
}

func TestGetHistory_UnresolvedAction(t *testing.T) {
	e, _ := newEngine()
	dialog := testutil.NewDialogBuilder("td-2").
		Definitions(testutil.PizzaDefinitions()).
		Round("hello", nil, testutil.Step("act-gone")).
		Build()

	_, err := e.GetHistory(context.Background(), dialog, newMemory(), HistoryOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrActionResolution))

	var aerr *core.ActionResolutionError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "act-gone", aerr.ActionID)
}

func TestGetHistory_ScorerMode(t *testing.T) {
	e, _ := newEngine()
	dialog := testutil.NewDialogBuilder("td-3").
		Definitions(testutil.PizzaDefinitions()).
		Round("cheese", nil, testutil.Step(testutil.ActionConfirm, testutil.Filled(testutil.ToppingsID, "cheese"))).
		Build()

	h, err := e.GetHistory(context.Background(), dialog, newMemory(), HistoryOptions{})
	require.NoError(t, err)
	assert.Equal(t, core.DialogModeScorer, h.DialogMode)
}

func TestGetHistory_LocalActionChangesOnlyWithUpdateState(t *testing.T) {
	ctx := context.Background()
	actions := engine.New()
	actions.Callbacks().AddCallback("checkout", func(ctx context.Context, m *memory.Manager, args ...string) (*core.Response, error) {
		return nil, m.RememberEntity("order", "o-1")
	})
	e := New(actions)
	dialog := testutil.NewDialogBuilder("td-4").
		Definitions(testutil.PizzaDefinitions()).
		Round("buy", nil, testutil.Step(testutil.ActionCheckout)).
		Build()

	mem := newMemory()
	h, err := e.GetHistory(ctx, dialog, mem, HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, h.Activities, 1, "a nil response emits no bot activity")
	_, ok, err := mem.Value(ctx, "order")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.GetHistory(ctx, dialog, mem, HistoryOptions{UpdateState: true})
	require.NoError(t, err)
	v, ok, err := mem.Value(ctx, "order")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "o-1", v)
}

func TestGetHistory_AuditLog(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(testutil.NewCountingStorage())
	audit := NewAuditLog(store, "u1", func(o *AuditOptions) { o.Limit = 2 })
	e := New(engine.New(), func(o *Options) { o.AuditLog = audit })

	dialog := testutil.NewDialogBuilder("td-5").
		Definitions(testutil.PizzaDefinitions()).
		Round("hi", nil, testutil.Step(testutil.ActionAskToppings)).
		Build()

	for i := 0; i < 3; i++ {
		_, err := e.GetHistory(ctx, dialog, newMemory(), HistoryOptions{})
		require.NoError(t, err)
	}

	records, err := audit.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "td-5", records[0].DialogID)
	assert.Equal(t, 2, records[1].Activities)
	assert.Equal(t, core.DialogModeWait, records[1].DialogMode)
	assert.False(t, records[1].ReplayedAt.IsZero())
}
