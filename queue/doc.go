// Package queue provides process-wide admission control for turn
// processing.
//
// A Queue admits at most one turn at a time across all conversations. The
// admitted turn is recorded as an in-flight Marker in a MarkerStore; when it
// finishes, Pop releases the marker and admits the next queued turn in
// arrival order. A turn that never calls Pop is reclaimed once its marker is
// older than Options.Timeout, so a stuck turn cannot block every other
// conversation forever.
//
// Callbacks are invoked after the internal lock is released, so a callback
// may safely call back into the queue.
package queue
