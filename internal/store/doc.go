// Package store provides the document store the messaging engine runs on.
//
// # Architecture
//
// The Store interface exposes Firestore-style primitives: create, get,
// update, delete by id, child listing, and live snapshot subscriptions.
// Two implementations exist:
//
//   - SQLiteStore: persistent storage using modernc.org/sqlite with WAL mode
//   - MockStore: in-memory twin with failure injection for unit tests
//
// # Server-assigned timestamps
//
// CreatedAt, Timestamp, and LastMessageAt are always assigned by the store
// at write time, never taken from the caller. Timestamps are strictly
// monotonic per store instance, so message ordering by timestamp is total
// within one store.
//
// # Watch semantics
//
// Every committed mutation bumps a store revision and re-delivers a full
// snapshot to each open subscription:
//
//   - WatchConversations(userID): all conversations whose participants
//     include the user
//   - WatchMessages(conversationID): the full ordered message set
//
// The current state is delivered as the first snapshot on open. Snapshots
// for one subscriber arrive in revision order. Cancel guarantees no
// delivery after it returns; a failed snapshot query or store close
// terminates the stream with an error exposed via Err(), never a silent
// stall.
//
// # Idempotent deletes
//
// DeleteConversation and DeleteMessage succeed as no-ops when the target is
// already gone. The duplicate purger depends on this: racing reconciliation
// passes may purge the same loser twice.
//
// # Error Handling
//
//   - ErrNotFound: requested record does not exist (get, summary update)
//   - ErrClosed: operation on a closed store
//   - ErrInvalidParticipant: subscription opened without a user id
package store
