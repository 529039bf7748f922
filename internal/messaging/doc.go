// Package messaging is the conversation synchronization and deduplication
// engine.
//
// # Overview
//
// Two people exchange messages inside a conversation record discovered via a
// live per-user subscription. Because both sides can initiate a chat at
// once, multiple conversation records for the same pair of participants may
// exist concurrently. This package keeps the published list duplicate-free
// through deterministic convergence rather than coordination: every snapshot
// is reconciled independently, and any two passes over the same data agree
// on the same winner.
//
// # Pipeline
//
//	store.WatchConversations -> Reconciler -> published list
//	                                      \-> Purger (losers, async)
//
//   - Reconciler: groups records by participant key, picks the record with
//     the most recent activity as the winner, resolves the other
//     participant's display profile (concurrently, with graceful fallback),
//     and reports losers.
//   - Purger: cascades the delete of a loser — all child messages first,
//     then the conversation. Idempotent; racing passes purging the same id
//     do not conflict. A TTL suppression cache drops redundant scheduling;
//     failed purges retry on a later pass.
//   - Sender: trims and validates text, creates the message, then updates
//     the conversation's summary cache. The two writes are ordered but not
//     transactional.
//   - StreamController: at most one live message feed; selecting a new
//     conversation cancels the old feed before opening the new one.
//   - Service: the facade the surrounding application embeds. Exposes the
//     live canonical list, the message feed, selection and send actions,
//     and loading/degraded flags.
//
// # Failure policy
//
//   - Profile lookup failures narrow one record's display profile to its
//     fallback; they never abort a pass and are never surfaced.
//   - Purge failures are logged and retried by a later pass; the published
//     list already excludes the loser either way.
//   - Send failures are surfaced to the caller; the input text is theirs to
//     retry. A summary-cache failure after the message exists is reported
//     as ErrSummaryUpdate, not as a failed send.
//   - Subscription termination flips the Degraded flag; silent staleness is
//     not an option.
package messaging
