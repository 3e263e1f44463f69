// Package engine connects entity memory to user code.
//
// An Engine owns a Callbacks registry and implements the two collaborators a
// turn or a replay needs:
//
//   - DetectEntities applies the entities predicted for a user input to
//     entity memory and then runs the user's entity detection callback.
//   - TakeAction produces the bot response of a scored or labeled action:
//     TEXT payloads substitute entity values, CARD payloads render a card
//     template and API_LOCAL payloads invoke a registered LocalAction.
//
// User callbacks never touch memory directly. They receive a
// memory.Manager over a snapshot; the engine persists the snapshot when the
// callback returns and expires the manager so a leaked reference can no
// longer mutate state.
//
// Example:
//
//	eng := engine.New()
//	eng.Callbacks().AddCallback("checkout", func(ctx context.Context, m *memory.Manager, args ...string) (*core.Response, error) {
//	    _ = m.RememberEntity("order", "o-42")
//	    return core.TextResponse("Order placed for " + args[0]), nil
//	})
//
// Lifecycle hooks (BeforeAction, AfterAction, OnError) observe dispatch
// without changing it; a hook returning an error aborts the action.
package engine
