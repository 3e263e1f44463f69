package dialogmesh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/internal/testutil"
	"github.com/hupe1980/dialogmesh/memory"
	"github.com/hupe1980/dialogmesh/model"
	"github.com/hupe1980/dialogmesh/replay"
	"github.com/hupe1980/dialogmesh/runner"
	"github.com/hupe1980/dialogmesh/session"
)

func newMesh(t *testing.T, optFns ...func(o *Options)) (*DialogMesh, *model.MockModel) {
	t.Helper()

	m := model.NewMockModel("scripted")
	opts := append([]func(o *Options){func(o *Options) {
		o.Definitions = testutil.PizzaDefinitions()
		o.Extractor = m
		o.Scorer = m
	}}, optFns...)

	mesh, err := New(opts...)
	require.NoError(t, err)

	return mesh, m
}

func TestNew_Validation(t *testing.T) {
	m := model.NewMockModel("scripted")

	tests := map[string]func(o *Options){
		"missing extractor": func(o *Options) { o.Scorer = m },
		"missing scorer":    func(o *Options) { o.Extractor = m },
		"missing storage": func(o *Options) {
			o.Extractor, o.Scorer, o.Storage = m, m, nil
		},
		"invalid definitions": func(o *Options) {
			o.Extractor, o.Scorer = m, m
			o.Definitions = core.Definitions{Actions: []core.Action{{ID: "a", Kind: core.ActionLocalAPI}}}
		},
	}

	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(fn)
			require.ErrorIs(t, err, core.ErrConfiguration)
		})
	}
}

func TestDialogMesh_HandleInput(t *testing.T) {
	ctx := context.Background()
	mesh, m := newMesh(t)
	m.AddExtraction("ham please", testutil.Label(testutil.ToppingsID, "ham"))
	m.AddScore(testutil.ActionCheckout)

	var gotArgs []string
	mesh.Callbacks().AddCallback("checkout", func(_ context.Context, mm *memory.Manager, args ...string) (*core.Response, error) {
		gotArgs = args
		return core.TextResponse("ordered"), mm.RememberEntity("order", "o-1")
	})

	activities, err := mesh.HandleInput(ctx, runner.Input{ConversationID: "conv-1", Text: "ham please"})
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "ordered", activities[0].Text)
	assert.Equal(t, []string{"ham", "$name"}, gotArgs)

	v, ok, err := mesh.Session("conv-1").Entities().Value(ctx, "order")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "o-1", v)
}

func TestDialogMesh_PersistentQueueMarker(t *testing.T) {
	ctx := context.Background()
	storage := testutil.NewCountingStorage()
	mesh, m := newMesh(t, func(o *Options) {
		o.Storage = storage
		o.QueueScope = "process"
	})
	m.AddScore(testutil.ActionAskToppings)

	_, err := mesh.HandleInput(ctx, runner.Input{ConversationID: "conv-1", Text: "hi"})
	require.NoError(t, err)

	_, ok := storage.Raw(session.Hash("process") + "_" + session.MessageMutexKey)
	assert.False(t, ok, "marker is released after the turn")

	require.NoError(t, mesh.Queue().AddInput(ctx, "conv-2", func(bool) {}))

	_, ok = storage.Raw(session.Hash("process") + "_" + session.MessageMutexKey)
	assert.True(t, ok)
}

func TestDialogMesh_Replay(t *testing.T) {
	ctx := context.Background()
	mesh, _ := newMesh(t, func(o *Options) { o.AuditScope = "trainer" })
	mesh.Callbacks().AddCallback("checkout", func(_ context.Context, _ *memory.Manager, args ...string) (*core.Response, error) {
		return core.TextResponse("Ordering " + args[0]), nil
	})

	dialog := testutil.NewDialogBuilder("td-1").
		Round("cheese please", []core.PredictedEntity{testutil.Label(testutil.ToppingsID, "cheese")},
			testutil.Step(testutil.ActionConfirm, testutil.Filled(testutil.ToppingsID, "cheese")),
			testutil.Step(testutil.ActionCheckout, testutil.Filled(testutil.ToppingsID, "cheese"))).
		Build()

	h, err := mesh.Replay(ctx, "trainer", dialog, replay.HistoryOptions{UpdateState: true})
	require.NoError(t, err)
	require.Len(t, h.Activities, 3)
	assert.Equal(t, "Ordering cheese", h.Activities[2].Text)
	assert.Equal(t, core.DialogModeWait, h.DialogMode)
	assert.Empty(t, h.Discrepancies)

	records, err := replay.NewAuditLog(mesh.Store(), "trainer").Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "td-1", records[0].DialogID)
}
