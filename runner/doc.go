// Package runner processes live user turns.
//
// A turn is admitted through the process-wide input queue, bound to the
// scope's app and session, and then driven through entity extraction and a
// bounded scoring loop until a terminal action waits for the user again.
//
// # Responsibilities (abridged)
//   - Serialized admission per process (queue.Queue)
//   - Session lifecycle: start, expiry continuation, teach mode
//   - Extraction, entity detection and action dispatch (model, engine)
//   - Ending the session and reporting structural errors to the user
//
// See runner.go for the operational implementation details.
package runner
