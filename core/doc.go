// Package core provides the foundational domain types and contracts used by
// dialogmesh. It defines the shared vocabulary for:
//
//   - Entities and their filled values (bucket vs. scalar slots)
//   - Actions and the definitions a trained model ships with
//   - Train dialogs (rounds of extractor and scorer steps)
//   - Activities exchanged with a conversation channel
//   - Session records and app bindings
//   - The persistent key/value Storage contract
//   - Error kinds shared across packages
//
// The package keeps persistence, admission control and replay out of scope,
// exposing small value types and interfaces so concrete backends live in
// sibling packages (storage, memory, session, queue, replay).
package core
