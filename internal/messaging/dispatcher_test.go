package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vedaverse/followerbot/internal/models"
)

// mockFlow records which handler saw each event.
type mockFlow struct {
	mu      sync.Mutex
	starts  []models.Event
	answers []models.Event
	texts   []models.Event
	feeds   []models.Event

	block chan struct{} // when set, HandleAnswer for user 1 blocks until closed
}

func (f *mockFlow) HandleFirstContact(ctx context.Context, ev models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, ev)
	return nil
}

func (f *mockFlow) HandleAnswer(ctx context.Context, ev models.Event) error {
	if f.block != nil && ev.UserID == 1 {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, ev)
	return nil
}

func (f *mockFlow) HandleMessage(ctx context.Context, ev models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, ev)
	return nil
}

func (f *mockFlow) AdvanceFeed(ctx context.Context, ev models.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds = append(f.feeds, ev)
	return nil
}

func runDispatcher(t *testing.T, flow Flow, events []models.Event) {
	t.Helper()
	ch := make(chan models.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)

	d := NewDispatcher(flow)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	d.Run(ctx, ch)
	d.Wait()
}

func TestDispatcherRoutesByKindAndPayload(t *testing.T) {
	flow := &mockFlow{}
	runDispatcher(t, flow, []models.Event{
		{ID: "1", Kind: models.EventFirstContact, UserID: 42},
		{ID: "2", Kind: models.EventCallback, UserID: 42, Payload: models.TagGenderMale},
		{ID: "3", Kind: models.EventCallback, UserID: 42, Payload: models.TagNextNews},
		{ID: "4", Kind: models.EventMessage, UserID: 42, Text: "hi"},
		{ID: "5", Kind: "bogus", UserID: 42},
	})

	flow.mu.Lock()
	defer flow.mu.Unlock()
	if len(flow.starts) != 1 {
		t.Errorf("expected 1 first-contact, got %d", len(flow.starts))
	}
	if len(flow.answers) != 1 || flow.answers[0].Payload != models.TagGenderMale {
		t.Errorf("unexpected answers: %v", flow.answers)
	}
	if len(flow.feeds) != 1 {
		t.Errorf("next_news not routed to the feed, feeds=%d", len(flow.feeds))
	}
	if len(flow.texts) != 1 {
		t.Errorf("expected 1 plain message, got %d", len(flow.texts))
	}
}

func TestDispatcherSlowUserDoesNotBlockOthers(t *testing.T) {
	flow := &mockFlow{block: make(chan struct{})}
	ch := make(chan models.Event, 2)
	ch <- models.Event{ID: "slow", Kind: models.EventCallback, UserID: 1, Payload: models.TagGenderMale}
	ch <- models.Event{ID: "fast", Kind: models.EventCallback, UserID: 2, Payload: models.TagGenderMale}
	close(ch)

	d := NewDispatcher(flow)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx, ch)

	// User 2's event completes while user 1's handler is still stuck.
	deadline := time.After(2 * time.Second)
	for {
		flow.mu.Lock()
		done := len(flow.answers) == 1 && flow.answers[0].UserID == 2
		flow.mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("independent user's event was blocked by a slow handler")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(flow.block)
	d.Wait()
	flow.mu.Lock()
	defer flow.mu.Unlock()
	if len(flow.answers) != 2 {
		t.Errorf("expected both answers handled, got %d", len(flow.answers))
	}
}

func TestDispatcherStopsOnContextCancel(t *testing.T) {
	flow := &mockFlow{}
	ch := make(chan models.Event)
	d := NewDispatcher(flow)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, ch)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on context cancellation")
	}
}
