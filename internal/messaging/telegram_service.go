package messaging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vedaverse/followerbot/internal/models"
	"github.com/vedaverse/followerbot/internal/telegram"
)

// startCommand is the reserved first-contact command. Everything after the
// first space is the opaque deep-link payload.
const startCommand = "/start"

// pollRetryDelay is how long the poll loop backs off after a transport error.
const pollRetryDelay = 5 * time.Second

// BotAPI is the subset of the Telegram client the service depends on.
type BotAPI interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, int64, error)
	SendMessage(ctx context.Context, chatID int64, text string, buttons []telegram.InlineButton) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string, buttons []telegram.InlineButton) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// TelegramService implements Service on top of the Telegram Bot API
// long-polling transport.
type TelegramService struct {
	client      BotAPI
	pollTimeout time.Duration
	events      chan models.Event
	done        chan struct{}
}

// NewTelegramService creates a TelegramService wrapping the given client.
func NewTelegramService(client BotAPI) *TelegramService {
	return &TelegramService{
		client:      client,
		pollTimeout: telegram.DefaultPollTimeout,
		events:      make(chan models.Event, DefaultChannelBufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the long-poll loop in a background goroutine.
func (s *TelegramService) Start(ctx context.Context) error {
	slog.Debug("TelegramService Start invoked")
	go s.pollLoop(ctx)
	return nil
}

// Stop stops background processing. The poll loop closes the event channel
// on its way out so in-flight sends never hit a closed channel.
func (s *TelegramService) Stop() error {
	slog.Info("TelegramService Stop invoked")
	close(s.done)
	return nil
}

// Events returns the channel of inbound events.
func (s *TelegramService) Events() <-chan models.Event {
	return s.events
}

// SendMessage delivers an outbound message, choosing sendPhoto when the
// message carries media.
func (s *TelegramService) SendMessage(ctx context.Context, to models.UserID, msg models.Message) error {
	buttons := make([]telegram.InlineButton, 0, len(msg.Choices))
	for _, c := range msg.Choices {
		buttons = append(buttons, telegram.InlineButton{Text: c.Label, CallbackData: c.Data})
	}
	if msg.MediaURL != "" {
		return s.client.SendPhoto(ctx, int64(to), msg.MediaURL, msg.Text, buttons)
	}
	return s.client.SendMessage(ctx, int64(to), msg.Text, buttons)
}

func (s *TelegramService) pollLoop(ctx context.Context) {
	slog.Debug("TelegramService poll loop starting")
	defer close(s.events)
	var offset int64
	for {
		select {
		case <-ctx.Done():
			slog.Debug("TelegramService poll loop stopping due to context cancellation")
			return
		case <-s.done:
			slog.Debug("TelegramService poll loop stopping")
			return
		default:
		}

		updates, next, err := s.client.GetUpdates(ctx, offset, s.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if telegram.IsPollTimeout(err) {
				continue
			}
			slog.Error("TelegramService getUpdates failed", "error", err)
			select {
			case <-time.After(pollRetryDelay):
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
			continue
		}
		offset = next

		for _, upd := range updates {
			ev, ok := s.classify(ctx, upd)
			if !ok {
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
	}
}

// classify turns one raw update into a domain event. Callback queries are
// acknowledged here so the client's spinner clears even if handling fails.
func (s *TelegramService) classify(ctx context.Context, upd telegram.Update) (models.Event, bool) {
	switch {
	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		if cb.From == nil {
			return models.Event{}, false
		}
		if err := s.client.AnswerCallback(ctx, cb.ID); err != nil {
			slog.Warn("TelegramService answerCallback failed", "callback_id", cb.ID, "error", err)
		}
		return models.Event{
			ID:        uuid.NewString(),
			Kind:      models.EventCallback,
			UserID:    models.UserID(cb.From.ID),
			Username:  cb.From.Username,
			FirstName: cb.From.FirstName,
			LastName:  cb.From.LastName,
			Payload:   cb.Data,
			// Callback queries carry no wire timestamp.
			Time: time.Now().Unix(),
		}, true

	case upd.Message != nil:
		m := upd.Message
		if m.From == nil || m.From.IsBot {
			return models.Event{}, false
		}
		sentAt := m.Date
		if sentAt == 0 {
			sentAt = time.Now().Unix()
		}
		ev := models.Event{
			ID:        uuid.NewString(),
			Kind:      models.EventMessage,
			UserID:    models.UserID(m.From.ID),
			Username:  m.From.Username,
			FirstName: m.From.FirstName,
			LastName:  m.From.LastName,
			Text:      m.Text,
			Time:      sentAt,
		}
		if cmd, payload, ok := splitStart(m.Text); ok {
			ev.Kind = models.EventFirstContact
			ev.Text = payload
			slog.Debug("TelegramService first contact", "user_id", ev.UserID, "command", cmd, "has_payload", payload != "")
		}
		return ev, true

	default:
		return models.Event{}, false
	}
}

// splitStart recognizes the start command and extracts its payload.
func splitStart(text string) (command, payload string, ok bool) {
	if !strings.HasPrefix(text, startCommand) {
		return "", "", false
	}
	rest := text[len(startCommand):]
	if rest == "" {
		return startCommand, "", true
	}
	if rest[0] != ' ' {
		// Another command sharing the prefix, e.g. /startover.
		return "", "", false
	}
	return startCommand, strings.TrimSpace(rest), true
}
