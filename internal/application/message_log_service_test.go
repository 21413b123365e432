package application

import (
	"errors"
	"testing"

	"wps-bot-bridge/internal/domain"
)

// TestListMessagesLimits tests the default and the upper bound of the page size
func TestListMessagesLimits(t *testing.T) {
	var gotLimit int
	repo := &MockMessageLogRepository{
		ListByConversationFunc: func(conversationID string, limit int) ([]domain.MessageLog, error) {
			gotLimit = limit
			return []domain.MessageLog{{ConversationID: conversationID}}, nil
		},
	}
	service := NewMessageLogService(repo)

	cases := map[int]int{0: defaultHistoryLimit, -5: defaultHistoryLimit, 10: 10, 1000: maxHistoryLimit}
	for in, want := range cases {
		entries, err := service.ListMessages("chat_1", in)
		if err != nil {
			t.Fatalf("limit %d: expected no error, got %v", in, err)
		}
		if gotLimit != want {
			t.Errorf("limit %d: expected repository limit %d, got %d", in, want, gotLimit)
		}
		if len(entries) != 1 || entries[0].ConversationID != "chat_1" {
			t.Errorf("limit %d: unexpected entries %+v", in, entries)
		}
	}
}

// TestListMessagesRequiresConversation tests that a blank id is rejected before the repository
func TestListMessagesRequiresConversation(t *testing.T) {
	called := false
	repo := &MockMessageLogRepository{
		ListByConversationFunc: func(string, int) ([]domain.MessageLog, error) {
			called = true
			return nil, nil
		},
	}

	_, err := NewMessageLogService(repo).ListMessages("  ", 10)
	if !errors.Is(err, ErrConversationRequired) {
		t.Errorf("expected ErrConversationRequired, got %v", err)
	}
	if called {
		t.Error("expected repository not to be called")
	}
}

// TestListMessagesEmptyAndError tests nil results and repository failures
func TestListMessagesEmptyAndError(t *testing.T) {
	repo := &MockMessageLogRepository{}
	entries, err := NewMessageLogService(repo).ListMessages("chat_1", 5)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", entries)
	}

	boom := errors.New("db down")
	repo.ListByConversationFunc = func(string, int) ([]domain.MessageLog, error) { return nil, boom }
	if _, err := NewMessageLogService(repo).ListMessages("chat_1", 5); !errors.Is(err, boom) {
		t.Errorf("expected repository error, got %v", err)
	}
}
