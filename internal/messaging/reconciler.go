// ABOUTME: Conversation reconciler resolving duplicate records per participant pair
// ABOUTME: Groups by participant key, picks a deterministic winner, enriches display profiles

package messaging

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tandemlearn/messaging/internal/profile"
	"github.com/tandemlearn/messaging/internal/store"
)

const (
	// unknownUserName is the display fallback when no profile and no
	// denormalized name can be resolved for the other participant.
	unknownUserName = "Unknown User"
	// defaultRole is assumed when the profile carries no role.
	defaultRole = "learner"
)

// ParticipantKey returns the canonical identifier for an unordered pair of
// user ids: the two ids sorted and joined with an underscore.
func ParticipantKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// ConversationView is one published entry of the canonical conversation
// list: a winning record with its resolved display profile.
type ConversationView struct {
	ID            string
	OtherID       string
	Other         profile.Snapshot
	LastMessage   string
	LastMessageAt *time.Time
	CreatedAt     time.Time
}

// Result is the outcome of one reconciliation pass.
type Result struct {
	// Conversations holds exactly one entry per distinct participant
	// pair, most recently active first.
	Conversations []ConversationView
	// Losers are the duplicate record ids to purge. Purging is the
	// caller's job and must not gate publishing.
	Losers []string
}

// Reconciler turns raw conversation snapshots into the canonical,
// duplicate-free list. A pass is a pure function of (snapshot, userID,
// profile lookup); passes are idempotent, so duplicate or re-ordered
// snapshot delivery converges to the same output without coordination.
type Reconciler struct {
	profiles profile.Store
	logger   *slog.Logger
}

// NewReconciler creates a reconciler. Pass nil logger for default.
func NewReconciler(profiles profile.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		profiles: profiles,
		logger:   logger.With("component", "reconciler"),
	}
}

type candidate struct {
	conv    *store.Conversation
	otherID string
	view    ConversationView
}

// Reconcile runs one pass over a snapshot for userID.
//
// Records without a resolvable other participant are skipped and logged.
// Profile lookups run concurrently, one per record, and are joined before
// anything is published; a lookup failure only narrows that record's
// profile to its fallback, never aborts the pass.
func (r *Reconciler) Reconcile(ctx context.Context, snap store.Snapshot, userID string) Result {
	candidates := make([]*candidate, 0, len(snap.Conversations))
	for _, conv := range snap.Conversations {
		otherID := conv.OtherParticipant(userID)
		if otherID == "" {
			r.logger.Warn("conversation has no resolvable other participant, skipping",
				"conversation_id", conv.ID,
				"participants", conv.Participants)
			continue
		}
		candidates = append(candidates, &candidate{conv: conv, otherID: otherID})
	}

	var wg sync.WaitGroup
	for _, c := range candidates {
		wg.Add(1)
		go func(c *candidate) {
			defer wg.Done()
			c.view = ConversationView{
				ID:            c.conv.ID,
				OtherID:       c.otherID,
				Other:         r.resolveProfile(ctx, c.conv, c.otherID),
				LastMessage:   c.conv.LastMessage,
				LastMessageAt: c.conv.LastMessageAt,
				CreatedAt:     c.conv.CreatedAt,
			}
		}(c)
	}
	wg.Wait()

	winners := make(map[string]*candidate)
	var losers []string
	for _, c := range candidates {
		key := ParticipantKey(userID, c.otherID)
		existing, ok := winners[key]
		if !ok {
			winners[key] = c
			continue
		}
		if beats(c.conv, existing.conv) {
			winners[key] = c
			losers = append(losers, existing.conv.ID)
		} else {
			losers = append(losers, c.conv.ID)
		}
	}

	views := make([]ConversationView, 0, len(winners))
	for _, c := range winners {
		views = append(views, c.view)
	}
	sort.Slice(views, func(i, j int) bool {
		ti, ri := recency(views[i].LastMessageAt, views[i].CreatedAt)
		tj, rj := recency(views[j].LastMessageAt, views[j].CreatedAt)
		if ri != rj {
			return ri > rj
		}
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return views[i].ID < views[j].ID
	})

	return Result{Conversations: views, Losers: losers}
}

// resolveProfile resolves the display profile for the other participant,
// degrading through the fallback chain: profile store, then the record's own
// denormalized name map, then the literal unknown-user placeholder.
func (r *Reconciler) resolveProfile(ctx context.Context, conv *store.Conversation, otherID string) profile.Snapshot {
	snap, err := r.profiles.Lookup(ctx, otherID)
	if err != nil {
		if err != profile.ErrNotFound {
			r.logger.Debug("profile lookup failed, using fallback",
				"user_id", otherID,
				"conversation_id", conv.ID,
				"error", err)
		}
		return fallbackProfile(conv, otherID)
	}

	resolved := *snap
	if resolved.Name == "" {
		resolved.Name = fallbackName(conv, otherID)
	}
	if resolved.Role == "" {
		resolved.Role = defaultRole
	}
	return resolved
}

func fallbackProfile(conv *store.Conversation, otherID string) profile.Snapshot {
	return profile.Snapshot{
		Name: fallbackName(conv, otherID),
		Role: defaultRole,
	}
}

func fallbackName(conv *store.Conversation, otherID string) string {
	if name := conv.ParticipantNames[otherID]; name != "" {
		return name
	}
	return unknownUserName
}

// recency ranks a record's activity. Rank 2: has LastMessageAt (a message
// was actually exchanged). Rank 1: only CreatedAt. Rank 0: neither. A
// lower rank always orders before a higher one, so an empty duplicate never
// outlives a conversation that carries messages; within a rank the
// timestamp decides.
func recency(lastMessageAt *time.Time, createdAt time.Time) (time.Time, int) {
	if lastMessageAt != nil {
		return *lastMessageAt, 2
	}
	if !createdAt.IsZero() {
		return createdAt, 1
	}
	return time.Time{}, 0
}

// beats reports whether record a wins over record b. Higher recency rank
// wins, then the newer timestamp; exact ties break on the lexicographically
// smaller id so concurrent passes agree on the same survivor.
func beats(a, b *store.Conversation) bool {
	ta, ra := recency(a.LastMessageAt, a.CreatedAt)
	tb, rb := recency(b.LastMessageAt, b.CreatedAt)
	if ra != rb {
		return ra > rb
	}
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.ID < b.ID
}
