package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vedaverse/followerbot/internal/models"
)

// Flow is the conversation engine surface the dispatcher routes events to.
type Flow interface {
	HandleFirstContact(ctx context.Context, ev models.Event) error
	HandleAnswer(ctx context.Context, ev models.Event) error
	HandleMessage(ctx context.Context, ev models.Event) error
	AdvanceFeed(ctx context.Context, ev models.Event) error
}

// Dispatcher drains a service's event channel and routes each event to the
// flow engine. Events are handled in their own goroutines so one user's slow
// backend call never delays another user's event; per-identity ordering is
// enforced by the engine's session locks, not here.
type Dispatcher struct {
	flow    Flow
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a Dispatcher for the given flow engine.
func NewDispatcher(flow Flow) *Dispatcher {
	return &Dispatcher{flow: flow, timeout: DefaultHandlerTimeout}
}

// Run consumes events until the channel closes or the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context, events <-chan models.Event) {
	slog.Debug("Dispatcher run loop starting")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Dispatcher stopping due to context cancellation")
			return
		case ev, ok := <-events:
			if !ok {
				slog.Debug("Dispatcher event channel closed")
				return
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.dispatch(ctx, ev)
			}()
		}
	}
}

// Wait blocks until all in-flight event handlers have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) dispatch(parent context.Context, ev models.Event) {
	ctx, cancel := context.WithTimeout(parent, d.timeout)
	defer cancel()

	var err error
	switch {
	case ev.Kind == models.EventFirstContact:
		err = d.flow.HandleFirstContact(ctx, ev)
	case ev.Kind == models.EventCallback && ev.Payload == models.TagNextNews:
		err = d.flow.AdvanceFeed(ctx, ev)
	case ev.Kind == models.EventCallback:
		err = d.flow.HandleAnswer(ctx, ev)
	case ev.Kind == models.EventMessage:
		err = d.flow.HandleMessage(ctx, ev)
	default:
		slog.Warn("Dispatcher dropping event of unknown kind", "kind", ev.Kind, "event_id", ev.ID)
		return
	}
	if err != nil {
		slog.Error("Dispatcher event handling failed", "kind", ev.Kind, "user_id", ev.UserID, "event_id", ev.ID, "error", err)
	}
}
