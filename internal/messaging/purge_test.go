// ABOUTME: Tests for the duplicate purger
// ABOUTME: Verifies cascade order, idempotence, partial failure, and racing purges

package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemlearn/messaging/internal/store"
)

func seedConversationWithMessages(t *testing.T, m *store.MockStore, n int) *store.Conversation {
	t.Helper()
	ctx := context.Background()
	conv := &store.Conversation{Participants: []string{"alice", "bob"}}
	require.NoError(t, m.CreateConversation(ctx, conv))
	for i := 0; i < n; i++ {
		require.NoError(t, m.CreateMessage(ctx, &store.Message{
			ConversationID: conv.ID,
			SenderID:       "alice",
			SenderName:     "Alice",
			Text:           "msg",
		}))
	}
	return conv
}

func TestPurge_DeletesChildrenBeforeParent(t *testing.T) {
	m := store.NewMockStore()
	defer m.Close()
	p := NewPurger(m, nil)
	defer p.Close()

	conv := seedConversationWithMessages(t, m, 3)

	require.NoError(t, p.Purge(context.Background(), conv.ID))

	// The parent delete must be the last entry, after every message delete.
	require.NotEmpty(t, m.DeleteLog)
	last := m.DeleteLog[len(m.DeleteLog)-1]
	assert.Equal(t, "conv:"+conv.ID, last)
	for _, entry := range m.DeleteLog[:len(m.DeleteLog)-1] {
		assert.True(t, strings.HasPrefix(entry, "msg:"), "unexpected entry before parent delete: %s", entry)
	}

	_, err := m.GetConversation(context.Background(), conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPurge_NonExistentIsNoOp(t *testing.T) {
	m := store.NewMockStore()
	defer m.Close()
	p := NewPurger(m, nil)
	defer p.Close()

	assert.NoError(t, p.Purge(context.Background(), "never-existed"))
}

func TestPurge_SecondCallIsNoOp(t *testing.T) {
	m := store.NewMockStore()
	defer m.Close()
	p := NewPurger(m, nil)
	defer p.Close()

	conv := seedConversationWithMessages(t, m, 2)

	require.NoError(t, p.Purge(context.Background(), conv.ID))
	// Suppression swallows the immediate repeat.
	require.NoError(t, p.Purge(context.Background(), conv.ID))

	// A fresh purger (new suppression cache) against the already-deleted
	// id must also succeed as a no-op.
	p2 := NewPurger(m, nil)
	defer p2.Close()
	assert.NoError(t, p2.Purge(context.Background(), conv.ID))
}

func TestPurge_MessageDeleteFailureKeepsParent(t *testing.T) {
	m := store.NewMockStore()
	defer m.Close()
	p := NewPurger(m, nil)
	defer p.Close()

	conv := seedConversationWithMessages(t, m, 2)
	m.FailDeleteMessage = errors.New("disk full")

	err := p.Purge(context.Background(), conv.ID)
	require.Error(t, err)

	// Parent must survive a failed cascade so a later pass can retry.
	_, getErr := m.GetConversation(context.Background(), conv.ID)
	assert.NoError(t, getErr)

	// Retry after the failure clears succeeds immediately: the failed
	// attempt must not stay suppressed.
	m.FailDeleteMessage = nil
	assert.NoError(t, p.Purge(context.Background(), conv.ID))
	_, getErr = m.GetConversation(context.Background(), conv.ID)
	assert.ErrorIs(t, getErr, store.ErrNotFound)
}

func TestPurge_ParentDeleteFailureIsRetryable(t *testing.T) {
	m := store.NewMockStore()
	defer m.Close()
	p := NewPurger(m, nil)
	defer p.Close()

	conv := seedConversationWithMessages(t, m, 1)
	m.FailDeleteConv = errors.New("write denied")

	err := p.Purge(context.Background(), conv.ID)
	require.Error(t, err)

	m.FailDeleteConv = nil
	assert.NoError(t, p.Purge(context.Background(), conv.ID))
	_, getErr := m.GetConversation(context.Background(), conv.ID)
	assert.ErrorIs(t, getErr, store.ErrNotFound)
}

func TestPurge_ConcurrentCallsDoNotError(t *testing.T) {
	m := store.NewMockStore()
	defer m.Close()

	conv := seedConversationWithMessages(t, m, 5)

	// Two purgers with independent suppression caches simulate racing
	// reconciliation passes.
	p1 := NewPurger(m, nil)
	defer p1.Close()
	p2 := NewPurger(m, nil)
	defer p2.Close()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = p1.Purge(context.Background(), conv.ID) }()
	go func() { defer wg.Done(); errs[1] = p2.Purge(context.Background(), conv.ID) }()
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])

	_, err := m.GetConversation(context.Background(), conv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
