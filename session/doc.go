// Package session manages the lifecycle state of one conversation scope:
// the bound app, the active session record and the entity memory that both
// reset.
//
// All state is persisted through a memory.Store under keys derived from a
// SHA-256 hash of the app scope and the scope key:
//
//	<hash>_BOTSTATE_APP       bound app
//	<hash>_BOTSTATE_SESSION   session record
//	<hash>_ENTITYSTATE        entity memory
//
// MarkerStore persists the input queue marker under <hash>_MESSAGE_MUTEX,
// hashing the scope key alone so the marker is shared by every app served
// for that key.
package session
