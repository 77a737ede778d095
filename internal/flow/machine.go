package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vedaverse/followerbot/internal/deeplink"
	"github.com/vedaverse/followerbot/internal/models"
)

// fallbackName substitutes for a missing transport display name, matching
// the remote store's expectation of non-empty name fields.
const fallbackName = "Unknown"

// HandleFirstContact processes the reserved start command: looks the user
// up remotely, registers them if absent, and either welcomes them back or
// begins the interview. A duplicate start while a session is already past
// NotRegistered is ignored outright so registration stays exactly-once.
func (e *Engine) HandleFirstContact(ctx context.Context, ev models.Event) error {
	return e.sessions.WithLock(ev.UserID, func(s *models.Session) error {
		if s.State != models.StateNotRegistered {
			slog.Info("flow ignoring duplicate first contact", "user_id", ev.UserID, "state", s.State, "event_id", ev.ID)
			return nil
		}

		// Attribution is captured once, at first contact only.
		if s.Attribution == nil {
			s.Attribution = deeplink.Decode(ev.Text)
			if len(s.Attribution) > 0 {
				slog.Info("flow captured attribution", "user_id", ev.UserID, "attribution", s.Attribution)
			}
		}

		name := ev.FirstName
		if name == "" {
			name = fallbackName
		}
		surname := ev.LastName
		if surname == "" {
			surname = fallbackName
		}

		profile, err := e.gateway.Lookup(ctx, name, surname, ev.Username)
		if err != nil {
			slog.Error("flow lookup failed", "user_id", ev.UserID, "error", err, "event_id", ev.ID)
			if sendErr := e.send(ctx, ev.UserID, textMessage(msgProcessingError)); sendErr != nil {
				return sendErr
			}
			return fmt.Errorf("first contact lookup: %w", err)
		}

		if profile != nil {
			if err := s.SetRemoteID(profile.ID); err != nil {
				return err
			}
			if profile.InterviewComplete() {
				s.Gender = profile.Gender
				s.Country = profile.Country
				s.NewsPreference = profile.NewsPreference
				if err := s.Advance(models.StateCompleted); err != nil {
					return err
				}
				slog.Info("flow returning user welcomed back", "user_id", ev.UserID, "remote_id", profile.ID)
				return e.send(ctx, ev.UserID, welcomeBackMessage(name))
			}
			slog.Info("flow resuming incomplete profile", "user_id", ev.UserID, "remote_id", profile.ID)
			return e.beginInterview(ctx, s, e.resumeState(profile), profile)
		}

		// Unknown user: best-effort avatar capture, then registration.
		var mediaID int64
		if e.avatar != nil {
			if id, ok := e.avatar(ctx, ev.UserID); ok {
				mediaID = id
				slog.Debug("flow avatar captured", "user_id", ev.UserID, "media_id", id)
			} else {
				slog.Debug("flow proceeding without avatar", "user_id", ev.UserID)
			}
		}

		created, err := e.gateway.Create(ctx, models.ProfileDraft{
			TGUserID:    int64(ev.UserID),
			Telegram:    ev.Username,
			Name:        name,
			Surname:     surname,
			MediaID:     mediaID,
			Attribution: s.Attribution,
		})
		if err != nil {
			slog.Error("flow registration failed", "user_id", ev.UserID, "error", err, "event_id", ev.ID)
			if sendErr := e.send(ctx, ev.UserID, textMessage(msgRegistrationFailed)); sendErr != nil {
				return sendErr
			}
			return fmt.Errorf("first contact registration: %w", err)
		}
		if err := s.SetRemoteID(created.ID); err != nil {
			return err
		}
		slog.Info("flow user registered", "user_id", ev.UserID, "remote_id", created.ID)

		if err := e.send(ctx, ev.UserID, registeredMessage(name)); err != nil {
			return err
		}
		return e.beginInterview(ctx, s, models.StateAskGender, nil)
	})
}

// resumeState picks where a partially answered remote profile re-enters
// the interview. The default restarts from the gender question regardless
// of which fields are missing, matching the historical behavior; see
// WithResumeAtMissing.
func (e *Engine) resumeState(profile *models.RemoteProfile) models.SessionState {
	if !e.resumeAtMissing {
		return models.StateAskGender
	}
	switch {
	case profile.Gender == "":
		return models.StateAskGender
	case profile.Country == "":
		return models.StateAskCountry
	default:
		return models.StateAskNews
	}
}

// beginInterview advances the session to the given asking state and sends
// the intro plus that state's question. When resuming past the first
// question, answers already present remotely are copied into the session.
func (e *Engine) beginInterview(ctx context.Context, s *models.Session, state models.SessionState, profile *models.RemoteProfile) error {
	if profile != nil {
		if state.Rank() > models.StateAskGender.Rank() {
			s.Gender = profile.Gender
		}
		if state.Rank() > models.StateAskCountry.Rank() {
			s.Country = profile.Country
		}
	}
	if err := s.Advance(state); err != nil {
		return err
	}
	if err := e.send(ctx, s.UserID, textMessage(msgIntro)); err != nil {
		return err
	}
	question, ok := questionFor(state)
	if !ok {
		return fmt.Errorf("no question for state %s", state)
	}
	return e.send(ctx, s.UserID, question)
}

// HandleAnswer processes a button-press answer against the current
// interview state. Invalid choices are logged and leave the session in
// place with no outbound message and no remote write; the next valid event
// re-evaluates the same state.
func (e *Engine) HandleAnswer(ctx context.Context, ev models.Event) error {
	return e.sessions.WithLock(ev.UserID, func(s *models.Session) error {
		switch s.State {
		case models.StateNotRegistered:
			slog.Warn("flow answer before registration", "user_id", ev.UserID, "payload", ev.Payload, "event_id", ev.ID)
			if err := e.send(ctx, ev.UserID, textMessage(msgRestartRequired)); err != nil {
				return err
			}
			return models.ErrNotRegistered

		case models.StateAskGender:
			if ev.Payload != models.TagGenderMale && ev.Payload != models.TagGenderFemale {
				slog.Warn("flow invalid gender choice", "user_id", ev.UserID, "payload", ev.Payload, "event_id", ev.ID)
				return models.ErrInvalidChoice
			}
			s.Gender = ev.Payload
			if err := s.Advance(models.StateAskCountry); err != nil {
				return err
			}
			question, _ := questionFor(models.StateAskCountry)
			return e.send(ctx, ev.UserID, question)

		case models.StateAskCountry:
			if ev.Payload != models.TagCountryRussia && ev.Payload != models.TagCountryOther {
				slog.Warn("flow invalid country choice", "user_id", ev.UserID, "payload", ev.Payload, "event_id", ev.ID)
				return models.ErrInvalidChoice
			}
			s.Country = ev.Payload
			if err := s.Advance(models.StateAskNews); err != nil {
				return err
			}
			question, _ := questionFor(models.StateAskNews)
			return e.send(ctx, ev.UserID, question)

		case models.StateAskNews:
			if ev.Payload != models.TagNewsYes && ev.Payload != models.TagNewsNo {
				slog.Warn("flow invalid news choice", "user_id", ev.UserID, "payload", ev.Payload, "event_id", ev.ID)
				return models.ErrInvalidChoice
			}
			return e.completeInterview(ctx, s, ev.Payload == models.TagNewsYes)

		case models.StateCompleted:
			slog.Warn("flow answer after completion ignored", "user_id", ev.UserID, "payload", ev.Payload, "event_id", ev.ID)
			return models.ErrAnswerRecorded
		}
		return fmt.Errorf("unhandled session state %s", s.State)
	})
}

// completeInterview submits the answers remotely before committing the
// final transition, so a failed submission leaves the session at AskNews
// and the next valid event retries. On success the session completes and
// either hands off to the feed or thanks the user.
func (e *Engine) completeInterview(ctx context.Context, s *models.Session, newsPreference bool) error {
	if s.RemoteID == 0 {
		slog.Error("flow session completed interview without remote id", "user_id", s.UserID)
		if err := e.send(ctx, s.UserID, textMessage(msgRestartRequired)); err != nil {
			return err
		}
		return models.ErrNotRegistered
	}

	fields := map[string]any{
		"gender":          s.Gender,
		"country":         s.Country,
		"news_preference": newsPreference,
		"type":            models.LifecycleTested,
	}
	if err := e.gateway.UpdateFields(ctx, s.RemoteID, fields); err != nil {
		slog.Error("flow answer submission failed", "user_id", s.UserID, "remote_id", s.RemoteID, "error", err)
		if sendErr := e.send(ctx, s.UserID, textMessage(msgProcessingError)); sendErr != nil {
			return sendErr
		}
		return fmt.Errorf("submit answers: %w", err)
	}

	s.NewsPreference = &newsPreference
	if err := s.Advance(models.StateCompleted); err != nil {
		return err
	}
	slog.Info("flow interview completed", "user_id", s.UserID, "remote_id", s.RemoteID, "news_preference", newsPreference)

	if newsPreference {
		return e.advanceFeedLocked(ctx, s)
	}
	return e.send(ctx, s.UserID, textMessage(msgThanks))
}

// HandleMessage processes a plain text message. Mid-interview text is
// treated as noise and nudged toward the buttons; anything else gets the
// generic fallback response.
func (e *Engine) HandleMessage(ctx context.Context, ev models.Event) error {
	return e.sessions.WithLock(ev.UserID, func(s *models.Session) error {
		if s.State.IsMidInterview() {
			slog.Debug("flow plain message during interview", "user_id", ev.UserID, "state", s.State, "event_id", ev.ID)
			return e.send(ctx, ev.UserID, textMessage(msgUseButtons))
		}
		return e.send(ctx, ev.UserID, textMessage(msgFallback))
	})
}
