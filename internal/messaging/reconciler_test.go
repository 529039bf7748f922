// ABOUTME: Tests for the conversation reconciler
// ABOUTME: Covers winner selection, participant-key grouping, profile fallback, and idempotence

package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemlearn/messaging/internal/profile"
	"github.com/tandemlearn/messaging/internal/store"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func tsp(sec int64) *time.Time {
	t := ts(sec)
	return &t
}

func record(id, a, b string, createdAt time.Time, lastMessageAt *time.Time) *store.Conversation {
	return &store.Conversation{
		ID:            id,
		Participants:  []string{a, b},
		CreatedAt:     createdAt,
		LastMessageAt: lastMessageAt,
	}
}

func snapshotOf(convs ...*store.Conversation) store.Snapshot {
	return store.Snapshot{Revision: 1, Conversations: convs}
}

func TestParticipantKey_OrderIndependent(t *testing.T) {
	assert.Equal(t, "alice_bob", ParticipantKey("alice", "bob"))
	assert.Equal(t, "alice_bob", ParticipantKey("bob", "alice"))
}

func TestReconcile_OneEntryPerPair(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	// Five records spanning three distinct pairs
	snap := snapshotOf(
		record("c1", "me", "bob", ts(10), nil),
		record("c2", "me", "bob", ts(20), nil),
		record("c3", "me", "carol", ts(30), nil),
		record("c4", "carol", "me", ts(5), nil),
		record("c5", "me", "dave", ts(40), nil),
	)

	result := r.Reconcile(context.Background(), snap, "me")
	require.Len(t, result.Conversations, 3)

	seen := make(map[string]bool)
	for _, view := range result.Conversations {
		key := ParticipantKey("me", view.OtherID)
		assert.False(t, seen[key], "duplicate pair published: %s", key)
		seen[key] = true
	}
	assert.Len(t, result.Losers, 2)
}

func TestReconcile_NewerLastMessageWins(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	snap := snapshotOf(
		record("older", "me", "bob", ts(1), tsp(100)),
		record("newer", "me", "bob", ts(2), tsp(200)),
	)

	result := r.Reconcile(context.Background(), snap, "me")
	require.Len(t, result.Conversations, 1)
	assert.Equal(t, "newer", result.Conversations[0].ID)
	assert.Equal(t, []string{"older"}, result.Losers)
}

func TestReconcile_CreatedOnlyOrdersBeforeAnyLastMessage(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	// The created-only record is newer on the wall clock, but a record
	// that actually has messages still wins.
	snap := snapshotOf(
		record("empty", "me", "bob", ts(500), nil),
		record("active", "me", "bob", ts(1), tsp(100)),
	)

	result := r.Reconcile(context.Background(), snap, "me")
	require.Len(t, result.Conversations, 1)
	assert.Equal(t, "active", result.Conversations[0].ID)
	assert.Equal(t, []string{"empty"}, result.Losers)
}

func TestReconcile_CreatedAtDecidesBetweenEmptyDuplicates(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	// Record X (createdAt=10) and record Y (createdAt=12), no messages in
	// either: exactly one (me,bob) entry survives, referencing Y.
	snap := snapshotOf(
		record("X", "me", "bob", ts(10), nil),
		record("Y", "me", "bob", ts(12), nil),
	)

	result := r.Reconcile(context.Background(), snap, "me")
	require.Len(t, result.Conversations, 1)
	assert.Equal(t, "Y", result.Conversations[0].ID)
	assert.Equal(t, []string{"X"}, result.Losers)
}

func TestReconcile_NoTimestampsLosesToAny(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	snap := snapshotOf(
		record("blank", "me", "bob", time.Time{}, nil),
		record("created", "me", "bob", ts(10), nil),
	)

	result := r.Reconcile(context.Background(), snap, "me")
	require.Len(t, result.Conversations, 1)
	assert.Equal(t, "created", result.Conversations[0].ID)
}

func TestReconcile_TieBreakIsDeterministic(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	a := record("aaa", "me", "bob", ts(10), tsp(100))
	b := record("bbb", "me", "bob", ts(10), tsp(100))

	// Same winner regardless of snapshot order.
	res1 := r.Reconcile(context.Background(), snapshotOf(a, b), "me")
	res2 := r.Reconcile(context.Background(), snapshotOf(b, a), "me")

	require.Len(t, res1.Conversations, 1)
	require.Len(t, res2.Conversations, 1)
	assert.Equal(t, res1.Conversations[0].ID, res2.Conversations[0].ID)
	assert.Equal(t, "aaa", res1.Conversations[0].ID)
}

func TestReconcile_SkipsRecordWithoutOtherParticipant(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	snap := snapshotOf(
		record("self", "me", "me", ts(10), nil),
		record("ok", "me", "bob", ts(10), nil),
	)

	result := r.Reconcile(context.Background(), snap, "me")
	require.Len(t, result.Conversations, 1)
	assert.Equal(t, "ok", result.Conversations[0].ID)
	assert.Empty(t, result.Losers, "skipped records are not losers")
}

func TestReconcile_ProfileFromLookup(t *testing.T) {
	profiles := profile.NewMockStore()
	profiles.Put("bob", &profile.Snapshot{
		Name:     "Bob",
		Role:     "mentor",
		PhotoURL: "https://example.com/bob.png",
		Location: "Porto",
	})
	r := NewReconciler(profiles, nil)

	result := r.Reconcile(context.Background(), snapshotOf(record("c1", "me", "bob", ts(10), nil)), "me")
	require.Len(t, result.Conversations, 1)

	other := result.Conversations[0].Other
	assert.Equal(t, "Bob", other.Name)
	assert.Equal(t, "mentor", other.Role)
	assert.Equal(t, "Porto", other.Location)
}

func TestReconcile_LookupFailureFallsBackToRecordNames(t *testing.T) {
	profiles := profile.NewMockStore()
	profiles.FailWith("bob", errors.New("profile store unreachable"))
	r := NewReconciler(profiles, nil)

	conv := record("c1", "me", "bob", ts(10), nil)
	conv.ParticipantNames = map[string]string{"bob": "Bob from cache"}

	result := r.Reconcile(context.Background(), snapshotOf(conv), "me")
	require.Len(t, result.Conversations, 1)
	assert.Equal(t, "Bob from cache", result.Conversations[0].Other.Name)
	assert.Equal(t, "learner", result.Conversations[0].Other.Role)
}

func TestReconcile_AbsentProfileBecomesUnknownUser(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	result := r.Reconcile(context.Background(), snapshotOf(record("c1", "me", "ghost", ts(10), nil)), "me")
	require.Len(t, result.Conversations, 1)

	other := result.Conversations[0].Other
	assert.Equal(t, "Unknown User", other.Name)
	assert.Equal(t, "learner", other.Role)
	assert.Empty(t, other.PhotoURL)
	assert.Empty(t, other.Location)
}

func TestReconcile_LookupFailureDoesNotAbortPass(t *testing.T) {
	profiles := profile.NewMockStore()
	profiles.Put("bob", &profile.Snapshot{Name: "Bob", Role: "mentor"})
	profiles.FailWith("carol", errors.New("timeout"))
	r := NewReconciler(profiles, nil)

	snap := snapshotOf(
		record("c1", "me", "bob", ts(10), nil),
		record("c2", "me", "carol", ts(20), nil),
	)

	result := r.Reconcile(context.Background(), snap, "me")
	require.Len(t, result.Conversations, 2)

	byOther := make(map[string]ConversationView)
	for _, view := range result.Conversations {
		byOther[view.OtherID] = view
	}
	assert.Equal(t, "Bob", byOther["bob"].Other.Name)
	assert.Equal(t, "Unknown User", byOther["carol"].Other.Name)
}

func TestReconcile_Idempotent(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	snap := snapshotOf(
		record("c1", "me", "bob", ts(10), tsp(100)),
		record("c2", "me", "bob", ts(20), tsp(50)),
		record("c3", "me", "carol", ts(30), nil),
	)

	first := r.Reconcile(context.Background(), snap, "me")
	second := r.Reconcile(context.Background(), snap, "me")

	assert.Equal(t, first.Conversations, second.Conversations)
	assert.ElementsMatch(t, first.Losers, second.Losers)
}

func TestReconcile_SortsMostRecentFirst(t *testing.T) {
	r := NewReconciler(profile.NewMockStore(), nil)

	snap := snapshotOf(
		record("old", "me", "bob", ts(10), tsp(100)),
		record("new", "me", "carol", ts(10), tsp(300)),
		record("empty", "me", "dave", ts(400), nil),
	)

	result := r.Reconcile(context.Background(), snap, "me")
	require.Len(t, result.Conversations, 3)
	assert.Equal(t, "new", result.Conversations[0].ID)
	assert.Equal(t, "old", result.Conversations[1].ID)
	assert.Equal(t, "empty", result.Conversations[2].ID)
}
