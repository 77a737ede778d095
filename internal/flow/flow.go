// Package flow implements the per-user conversation state machine and the
// content feed cursor.
//
// The state machine drives the fixed onboarding interview (gender, country,
// news preference), registers unknown users against the remote profile
// store, and hands completed sessions off to the feed. All handlers run
// inside the session store's per-identity lock, so the full read-state,
// decide, remote-call, write-state sequence is a single critical section
// and two overlapping events for one identity can never double-fire a side
// effect or advance the state twice.
package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vedaverse/followerbot/internal/models"
	"github.com/vedaverse/followerbot/internal/session"
)

// Gateway is the remote profile and content store contract the flow
// depends on. Implemented by the backend client; mocked in tests.
type Gateway interface {
	Lookup(ctx context.Context, name, surname, telegram string) (*models.RemoteProfile, error)
	Create(ctx context.Context, draft models.ProfileDraft) (*models.RemoteProfile, error)
	UpdateFields(ctx context.Context, remoteID int64, fields map[string]any) error
	FetchPage(ctx context.Context, offset int) (*models.ContentItem, error)
}

// Messenger sends outbound messages to a user. Implemented by the
// messaging service.
type Messenger interface {
	SendMessage(ctx context.Context, to models.UserID, msg models.Message) error
}

// AvatarFunc captures the user's profile photo into the remote media
// library, returning its handle. Capture is best-effort: ok is false when
// no photo exists or any step failed, and registration proceeds without
// media. The no-media path is an explicit branch, not a swallowed fault.
type AvatarFunc func(ctx context.Context, userID models.UserID) (mediaID int64, ok bool)

// Engine is the conversation state machine plus feed cursor.
type Engine struct {
	sessions *session.Store
	gateway  Gateway
	msg      Messenger
	avatar   AvatarFunc

	// resumeAtMissing controls how a partially answered remote profile
	// re-enters the interview: false restarts from the gender question (the
	// historical behavior), true resumes at the first missing answer.
	resumeAtMissing bool
}

// Option configures the Engine.
type Option func(*Engine)

// WithAvatarCapture enables best-effort avatar capture during registration.
func WithAvatarCapture(fn AvatarFunc) Option {
	return func(e *Engine) { e.avatar = fn }
}

// WithResumeAtMissing makes a partial remote profile resume the interview
// at its first unanswered question instead of restarting from the top.
func WithResumeAtMissing() Option {
	return func(e *Engine) { e.resumeAtMissing = true }
}

// NewEngine creates the flow engine.
func NewEngine(sessions *session.Store, gateway Gateway, msg Messenger, opts ...Option) *Engine {
	e := &Engine{sessions: sessions, gateway: gateway, msg: msg}
	for _, opt := range opts {
		opt(e)
	}
	slog.Debug("flow engine created", "resume_at_missing", e.resumeAtMissing, "avatar_capture", e.avatar != nil)
	return e
}

func (e *Engine) send(ctx context.Context, to models.UserID, msg models.Message) error {
	if err := e.msg.SendMessage(ctx, to, msg); err != nil {
		slog.Error("flow failed to send message", "user_id", to, "error", err)
		return fmt.Errorf("send message to %d: %w", to, err)
	}
	return nil
}
