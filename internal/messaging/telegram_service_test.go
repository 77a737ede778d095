package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vedaverse/followerbot/internal/models"
	"github.com/vedaverse/followerbot/internal/telegram"
)

// mockBotAPI returns scripted update batches and records outbound calls.
type mockBotAPI struct {
	mu sync.Mutex

	batches [][]telegram.Update
	offsets []int64

	sentTexts  []string
	sentPhotos []string
	answered   []string
}

func (m *mockBotAPI) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error) {
	m.mu.Lock()
	m.offsets = append(m.offsets, offset)
	if len(m.batches) == 0 {
		m.mu.Unlock()
		// Simulate an empty long-poll cycle without spinning the test hot.
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Millisecond):
		}
		return nil, offset, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	m.mu.Unlock()
	next := offset
	if len(batch) > 0 {
		next = batch[len(batch)-1].UpdateID + 1
	}
	return batch, next, nil
}

func (m *mockBotAPI) SendMessage(ctx context.Context, chatID int64, text string, buttons []telegram.InlineButton) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentTexts = append(m.sentTexts, text)
	return nil
}

func (m *mockBotAPI) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, buttons []telegram.InlineButton) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentPhotos = append(m.sentPhotos, photoURL)
	return nil
}

func (m *mockBotAPI) AnswerCallback(ctx context.Context, callbackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answered = append(m.answered, callbackID)
	return nil
}

func textUpdate(updateID, userID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		Message: &telegram.IncomingMessage{
			MessageID: updateID,
			Chat:      &telegram.Chat{ID: userID},
			From:      &telegram.User{ID: userID, FirstName: "Ivan", Username: "ivan42"},
			Text:      text,
		},
	}
}

func callbackUpdate(updateID, userID int64, callbackID, data string) telegram.Update {
	return telegram.Update{
		UpdateID: updateID,
		CallbackQuery: &telegram.CallbackQuery{
			ID:   callbackID,
			From: &telegram.User{ID: userID, FirstName: "Ivan"},
			Data: data,
		},
	}
}

func collectEvents(t *testing.T, events <-chan models.Event, n int) []models.Event {
	t.Helper()
	out := make([]models.Event, 0, n)
	deadline := time.After(2 * time.Second)
	for len(out) < n {
		select {
		case ev := <-events:
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %d of %d", len(out), n)
		}
	}
	return out
}

func TestTelegramServiceClassifiesUpdates(t *testing.T) {
	api := &mockBotAPI{batches: [][]telegram.Update{{
		textUpdate(10, 42, "/start dXRtX3NvdXJjZT14"),
		textUpdate(11, 42, "hello there"),
		callbackUpdate(12, 42, "cb-1", models.TagGenderMale),
	}}}
	svc := NewTelegramService(api)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got := collectEvents(t, svc.Events(), 3)
	cancel()

	if got[0].Kind != models.EventFirstContact {
		t.Errorf("expected first contact, got %s", got[0].Kind)
	}
	if got[0].Text != "dXRtX3NvdXJjZT14" {
		t.Errorf("start payload not extracted: %q", got[0].Text)
	}
	if got[0].FirstName != "Ivan" || got[0].Username != "ivan42" {
		t.Errorf("identity fields not carried: %+v", got[0])
	}

	if got[1].Kind != models.EventMessage || got[1].Text != "hello there" {
		t.Errorf("unexpected message event: %+v", got[1])
	}

	if got[2].Kind != models.EventCallback || got[2].Payload != models.TagGenderMale {
		t.Errorf("unexpected callback event: %+v", got[2])
	}
	api.mu.Lock()
	answered := len(api.answered)
	api.mu.Unlock()
	if answered != 1 {
		t.Errorf("callback not acknowledged, answered=%d", answered)
	}

	if got[0].ID == "" || got[0].ID == got[1].ID {
		t.Error("events must carry distinct correlation IDs")
	}
}

func TestTelegramServiceAdvancesOffset(t *testing.T) {
	api := &mockBotAPI{batches: [][]telegram.Update{
		{textUpdate(10, 42, "a")},
		{textUpdate(11, 42, "b")},
	}}
	svc := NewTelegramService(api)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	collectEvents(t, svc.Events(), 2)

	// The third poll may still be in flight; wait for it before asserting.
	deadline := time.After(2 * time.Second)
	for {
		api.mu.Lock()
		n := len(api.offsets)
		api.mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected at least three polls")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	api.mu.Lock()
	defer api.mu.Unlock()
	if api.offsets[0] != 0 || api.offsets[1] != 11 || api.offsets[2] != 12 {
		t.Errorf("offsets did not advance past consumed updates: %v", api.offsets)
	}
}

func TestTelegramServiceIgnoresBots(t *testing.T) {
	bot := textUpdate(10, 99, "spam")
	bot.Message.From.IsBot = true
	api := &mockBotAPI{batches: [][]telegram.Update{{bot, textUpdate(11, 42, "real")}}}
	svc := NewTelegramService(api)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got := collectEvents(t, svc.Events(), 1)
	cancel()

	if got[0].UserID != 42 {
		t.Errorf("bot message was not filtered, got event for %d", got[0].UserID)
	}
}

func TestTelegramServiceSendMessageChoosesTransport(t *testing.T) {
	api := &mockBotAPI{}
	svc := NewTelegramService(api)
	ctx := context.Background()

	if err := svc.SendMessage(ctx, 42, models.Message{Text: "plain"}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if err := svc.SendMessage(ctx, 42, models.Message{Text: "cap", MediaURL: "https://cdn.example.com/a.jpg"}); err != nil {
		t.Fatalf("SendMessage with media failed: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.sentTexts) != 1 || api.sentTexts[0] != "plain" {
		t.Errorf("unexpected text sends: %v", api.sentTexts)
	}
	if len(api.sentPhotos) != 1 || api.sentPhotos[0] != "https://cdn.example.com/a.jpg" {
		t.Errorf("unexpected photo sends: %v", api.sentPhotos)
	}
}

func TestTelegramServiceTimestamps(t *testing.T) {
	sent := textUpdate(10, 42, "hello")
	sent.Message.Date = 1700000000
	api := &mockBotAPI{batches: [][]telegram.Update{{
		sent,
		textUpdate(11, 42, "no date"),
		callbackUpdate(12, 42, "cb-1", models.TagNewsYes),
	}}}
	svc := NewTelegramService(api)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := time.Now().Unix()
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got := collectEvents(t, svc.Events(), 3)
	cancel()

	if got[0].Time != 1700000000 {
		t.Errorf("message event must carry the wire timestamp, got %d", got[0].Time)
	}
	if got[1].Time < before {
		t.Errorf("message without a wire timestamp should fall back to ingestion time, got %d", got[1].Time)
	}
	if got[2].Time < before {
		t.Errorf("callback event should be stamped at ingestion, got %d", got[2].Time)
	}
}

func TestSplitStart(t *testing.T) {
	tests := []struct {
		text    string
		payload string
		ok      bool
	}{
		{"/start", "", true},
		{"/start dXRtX3NvdXJjZT14", "dXRtX3NvdXJjZT14", true},
		{"/start   padded  ", "padded", true},
		{"/startover", "", false},
		{"hello", "", false},
	}
	for _, tc := range tests {
		_, payload, ok := splitStart(tc.text)
		if ok != tc.ok || payload != tc.payload {
			t.Errorf("splitStart(%q) = (%q, %v), want (%q, %v)", tc.text, payload, ok, tc.payload, tc.ok)
		}
	}
}
