package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vedaverse/followerbot/internal/models"
)

// AdvanceFeed serves the next content item for the user. The feed is a
// restartable cyclic sequence: each call fetches exactly one page at the
// session's cursor, exhaustion resets the cursor to 0, and the next call
// starts the feed over from the first item.
func (e *Engine) AdvanceFeed(ctx context.Context, ev models.Event) error {
	return e.sessions.WithLock(ev.UserID, func(s *models.Session) error {
		if s.State != models.StateCompleted || s.RemoteID == 0 {
			slog.Warn("flow feed advance before completion", "user_id", ev.UserID, "state", s.State, "event_id", ev.ID)
			if err := e.send(ctx, ev.UserID, textMessage(msgRestartRequired)); err != nil {
				return err
			}
			return models.ErrNotRegistered
		}
		return e.advanceFeedLocked(ctx, s)
	})
}

// advanceFeedLocked requires the caller to hold the session's lock.
func (e *Engine) advanceFeedLocked(ctx context.Context, s *models.Session) error {
	item, err := e.gateway.FetchPage(ctx, s.FeedCursor)
	if err != nil {
		slog.Error("flow feed fetch failed", "user_id", s.UserID, "cursor", s.FeedCursor, "error", err)
		if sendErr := e.send(ctx, s.UserID, textMessage(msgProcessingError)); sendErr != nil {
			return sendErr
		}
		return fmt.Errorf("fetch feed page: %w", err)
	}

	if item != nil {
		// Cursor advances only after the item is actually delivered.
		if err := e.send(ctx, s.UserID, contentMessage(item)); err != nil {
			return err
		}
		s.FeedCursor++
		slog.Debug("flow feed item served", "user_id", s.UserID, "cursor", s.FeedCursor)
		return nil
	}

	// Exhausted: end-of-feed notice, one lifecycle update, cyclic restart.
	if err := e.send(ctx, s.UserID, textMessage(msgEndOfFeed)); err != nil {
		return err
	}
	if err := e.gateway.UpdateFields(ctx, s.RemoteID, map[string]any{"type": models.LifecycleReader}); err != nil {
		// Lifecycle tagging is not worth breaking the feed over; the next
		// exhaustion issues the update again.
		slog.Error("flow reader lifecycle update failed", "user_id", s.UserID, "remote_id", s.RemoteID, "error", err)
	}
	s.FeedCursor = 0
	slog.Info("flow feed exhausted, cursor reset", "user_id", s.UserID, "remote_id", s.RemoteID)
	return nil
}
