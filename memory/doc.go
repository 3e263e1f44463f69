// Package memory implements the conversation state layers that sit on top of
// a core.Storage:
//
//   - Store: a write-through, process-local value cache over the persistent
//     store. Equal writes and deletes of already empty entries never reach
//     the store.
//   - Scoped: a view of a Store that prefixes every key with an owner scope.
//   - EntityMemory: the entity name → filled values map of one scope,
//     serialized as a single blob.
//   - Manager: the façade handed to user callbacks. It works on an in-memory
//     snapshot which the caller persists once the callback returns.
//
// The cache is only coherent within one process. Correctness relies on the
// input queue admitting at most one turn at a time; the packages here do not
// lock across a read-modify-write cycle.
package memory
