// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers conversation/message CRUD, server timestamps, and idempotent deletes

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{
		Participants:     []string{"alice", "bob"},
		ParticipantNames: map[string]string{"alice": "Alice", "bob": "Bob"},
	}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.ID == "" {
		t.Fatal("expected store to assign an id")
	}
	if conv.CreatedAt.IsZero() {
		t.Fatal("expected store to assign CreatedAt")
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Participants[0] != "alice" || got.Participants[1] != "bob" {
		t.Errorf("participants mismatch: got %v", got.Participants)
	}
	if got.ParticipantNames["bob"] != "Bob" {
		t.Errorf("participant names mismatch: got %v", got.ParticipantNames)
	}
	if got.LastMessageAt != nil {
		t.Errorf("expected nil LastMessageAt on a fresh conversation, got %v", got.LastMessageAt)
	}
}

func TestCreateConversation_RejectsWrongParticipantCount(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateConversation(context.Background(), &Conversation{Participants: []string{"alice"}})
	if err == nil {
		t.Fatal("expected error for single-participant conversation")
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetConversation(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversationsByParticipant_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, pair := range [][]string{{"alice", "bob"}, {"alice", "carol"}, {"bob", "carol"}} {
		if err := s.CreateConversation(ctx, &Conversation{Participants: pair}); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}

	convs, err := s.ListConversationsByParticipant(ctx, "alice")
	if err != nil {
		t.Fatalf("ListConversationsByParticipant failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations for alice, got %d", len(convs))
	}
	for _, conv := range convs {
		if conv.OtherParticipant("alice") == "" {
			t.Errorf("conversation %s has no other participant", conv.ID)
		}
	}
}

func TestUpdateConversationSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{Participants: []string{"alice", "bob"}}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if err := s.UpdateConversationSummary(ctx, conv.ID, "hi"); err != nil {
		t.Fatalf("UpdateConversationSummary failed: %v", err)
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.LastMessage != "hi" {
		t.Errorf("LastMessage mismatch: got %q, want %q", got.LastMessage, "hi")
	}
	if got.LastMessageAt == nil {
		t.Fatal("expected LastMessageAt to be set")
	}
	if !got.LastMessageAt.After(got.CreatedAt) {
		t.Errorf("LastMessageAt %v not after CreatedAt %v", got.LastMessageAt, got.CreatedAt)
	}
}

func TestUpdateConversationSummary_NotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateConversationSummary(context.Background(), "missing", "hi")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteConversation_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{Participants: []string{"alice", "bob"}}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("second delete should be a no-op, got: %v", err)
	}
	if _, err := s.GetConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMessages_OrderedByServerTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{Participants: []string{"alice", "bob"}}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	texts := []string{"one", "two", "three"}
	for _, text := range texts {
		msg := &Message{ConversationID: conv.ID, SenderID: "alice", SenderName: "Alice", Text: text}
		if err := s.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, text := range texts {
		if msgs[i].Text != text {
			t.Errorf("message %d: got %q, want %q", i, msgs[i].Text, text)
		}
	}
	// Store-assigned timestamps must be strictly monotonic
	for i := 1; i < len(msgs); i++ {
		if !msgs[i].Timestamp.After(msgs[i-1].Timestamp) {
			t.Errorf("timestamp %d (%v) not after %d (%v)",
				i, msgs[i].Timestamp, i-1, msgs[i-1].Timestamp)
		}
	}
}

func TestDeleteMessage_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := &Conversation{Participants: []string{"alice", "bob"}}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	msg := &Message{ConversationID: conv.ID, SenderID: "alice", SenderName: "Alice", Text: "hi"}
	if err := s.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	if err := s.DeleteMessage(ctx, conv.ID, msg.ID); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := s.DeleteMessage(ctx, conv.ID, msg.ID); err != nil {
		t.Fatalf("second delete should be a no-op, got: %v", err)
	}

	ids, err := s.ListMessageIDs(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessageIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no message ids, got %v", ids)
	}
}
