package domain

import (
	"strings"
	"testing"
	"time"
)

// Default test values matching the shipped configuration
const (
	defaultTTL      = 30 * time.Minute
	defaultMaxTurns = 10
)

var (
	testStart     = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	defaultPolicy = SessionPolicy{MaxTurns: defaultMaxTurns, IdleTTL: defaultTTL}
)

// TestNewConversationSession tests session creation and initialization
func TestNewConversationSession(t *testing.T) {
	conversationID := "chat_1234567890"
	session := NewConversationSession(conversationID, testStart)

	if session.ConversationID != conversationID {
		t.Errorf("expected ConversationID %s, got %s", conversationID, session.ConversationID)
	}

	if len(session.Turns) != 0 {
		t.Errorf("expected empty Turns slice, got %d turns", len(session.Turns))
	}

	if !session.LastActivity.Equal(testStart) {
		t.Errorf("expected LastActivity %v, got %v", testStart, session.LastActivity)
	}
}

// TestConversationSessionIsExpired tests session expiration check logic
func TestConversationSessionIsExpired(t *testing.T) {
	session := NewConversationSession("chat_1", testStart)

	if session.IsExpired(testStart, defaultTTL) {
		t.Error("expected new session to not be expired")
	}

	if session.IsExpired(testStart.Add(defaultTTL), defaultTTL) {
		t.Error("expected session exactly at the TTL to not be expired")
	}

	if !session.IsExpired(testStart.Add(31*time.Minute), defaultTTL) {
		t.Error("expected session idle for 31 minutes to be expired")
	}

	if session.IsExpired(testStart.Add(24*time.Hour), 0) {
		t.Error("expected zero TTL to disable expiry")
	}
}

// TestConversationSessionAppend tests appending a user/assistant pair
func TestConversationSessionAppend(t *testing.T) {
	session := NewConversationSession("chat_1", testStart)
	later := testStart.Add(time.Minute)

	session.Append(later, defaultPolicy,
		Turn{Role: RoleUser, Text: "Hello"},
		Turn{Role: RoleAssistant, Text: "Hi there!"},
	)

	history := session.GetHistory()
	if len(history) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(history))
	}

	if history[0].Role != RoleUser || history[0].Text != "Hello" {
		t.Errorf("expected first turn to be user 'Hello', got %v", history[0])
	}

	if history[1].Role != RoleAssistant || history[1].Text != "Hi there!" {
		t.Errorf("expected second turn to be assistant 'Hi there!', got %v", history[1])
	}

	if !session.LastActivity.Equal(later) {
		t.Errorf("expected LastActivity to move to %v, got %v", later, session.LastActivity)
	}
}

// TestConversationSessionMaxTurns tests FIFO removal when the cap is exceeded
func TestConversationSessionMaxTurns(t *testing.T) {
	session := NewConversationSession("chat_1", testStart)
	policy := SessionPolicy{MaxTurns: 4}

	for i := 0; i < 5; i++ {
		session.Append(testStart, policy,
			Turn{Role: RoleUser, Text: "q" + string(rune('0'+i))},
			Turn{Role: RoleAssistant, Text: "a" + string(rune('0'+i))},
		)
		if len(session.Turns) > policy.MaxTurns {
			t.Fatalf("turn cap violated after append %d: %d turns", i, len(session.Turns))
		}
	}

	history := session.GetHistory()
	want := []string{"q3", "a3", "q4", "a4"}
	for i, w := range want {
		if history[i].Text != w {
			t.Errorf("turn %d: expected %s, got %s", i, w, history[i].Text)
		}
	}
}

// TestConversationSessionMaxBytes tests the byte budget, which never drops the newest turn
func TestConversationSessionMaxBytes(t *testing.T) {
	session := NewConversationSession("chat_1", testStart)
	policy := SessionPolicy{MaxTurns: 10, MaxBytes: 10}

	session.Append(testStart, policy, Turn{Role: RoleUser, Text: "12345"})
	session.Append(testStart, policy, Turn{Role: RoleAssistant, Text: "67890"})
	if len(session.Turns) != 2 {
		t.Fatalf("expected both turns within budget, got %d", len(session.Turns))
	}

	session.Append(testStart, policy, Turn{Role: RoleUser, Text: "abc"})
	if len(session.Turns) != 2 || session.Turns[0].Text != "67890" {
		t.Errorf("expected oldest turn dropped, got %v", session.Turns)
	}

	big := strings.Repeat("x", 50)
	session.Append(testStart, policy, Turn{Role: RoleAssistant, Text: big})
	if len(session.Turns) != 1 || session.Turns[0].Text != big {
		t.Errorf("expected only the oversized newest turn to remain, got %d turns", len(session.Turns))
	}
}

// TestConversationSessionAppendAfterExpiry tests that an expired session restarts empty
func TestConversationSessionAppendAfterExpiry(t *testing.T) {
	session := NewConversationSession("chat_1", testStart)
	session.Append(testStart, defaultPolicy, Turn{Role: RoleUser, Text: "old"})

	later := testStart.Add(defaultTTL + time.Second)
	session.Append(later, defaultPolicy, Turn{Role: RoleUser, Text: "new"})

	history := session.GetHistory()
	if len(history) != 1 || history[0].Text != "new" {
		t.Errorf("expected history [new], got %v", history)
	}
}

// TestConversationSessionClear tests that Clear drops all turns
func TestConversationSessionClear(t *testing.T) {
	session := NewConversationSession("chat_1", testStart)
	session.Append(testStart, defaultPolicy, Turn{Role: RoleUser, Text: "hello"})

	session.Clear(testStart.Add(time.Minute))

	if len(session.GetHistory()) != 0 {
		t.Errorf("expected empty history after Clear, got %d", len(session.GetHistory()))
	}
}

// TestConversationSessionGetHistoryReturnsCopy tests that GetHistory returns a copy
func TestConversationSessionGetHistoryReturnsCopy(t *testing.T) {
	session := NewConversationSession("chat_1", testStart)
	session.Append(testStart, defaultPolicy, Turn{Role: RoleUser, Text: "Original"})

	history := session.GetHistory()
	history[0].Text = "Modified"

	if session.GetHistory()[0].Text != "Original" {
		t.Error("expected GetHistory to return a copy, but original was modified")
	}
}

// TestNormalizedMessageReceiver tests reply routing for group and single chats
func TestNormalizedMessageReceiver(t *testing.T) {
	group := NormalizedMessage{ConversationID: "chat_g", ConversationKind: ConversationGroup, SenderID: "u1"}
	if r := group.Receiver(); r.ID != "chat_g" || r.Type != ReceiverTypeChat {
		t.Errorf("expected group reply to chat_g, got %+v", r)
	}

	single := NormalizedMessage{ConversationID: "chat_s", ConversationKind: ConversationSingle, SenderID: "u1"}
	if r := single.Receiver(); r.ID != "u1" || r.Type != ReceiverTypeUser {
		t.Errorf("expected single reply to user u1, got %+v", r)
	}

	if single.SessionKey() != "chat_s" {
		t.Errorf("expected session key chat_s, got %s", single.SessionKey())
	}
}
