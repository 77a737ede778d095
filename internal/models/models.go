// Package models defines the core data structures for followerbot.
//
// It includes the per-user session, the remote follower profile, content
// feed items, and the inbound/outbound event types shared across modules.
package models

import (
	"errors"
	"time"
)

// UserID is the opaque numeric identity assigned by the chat transport.
// It is the primary key for all session and remote lookups.
type UserID int64

// SessionState identifies where a user is in the onboarding interview.
type SessionState string

const (
	// StateNotRegistered means no remote profile is known for the user yet.
	StateNotRegistered SessionState = "not_registered"
	// StateAskGender means the gender question has been asked.
	StateAskGender SessionState = "ask_gender"
	// StateAskCountry means the country question has been asked.
	StateAskCountry SessionState = "ask_country"
	// StateAskNews means the news-preference question has been asked.
	StateAskNews SessionState = "ask_news"
	// StateCompleted means the interview finished and answers were submitted.
	StateCompleted SessionState = "completed"
)

// stateRank orders interview states for monotonicity checks. States only
// ever advance in this order; they never regress.
var stateRank = map[SessionState]int{
	StateNotRegistered: 0,
	StateAskGender:     1,
	StateAskCountry:    2,
	StateAskNews:       3,
	StateCompleted:     4,
}

// Rank returns the position of the state in the fixed interview order.
func (s SessionState) Rank() int {
	return stateRank[s]
}

// IsMidInterview reports whether the state is in the open interview window,
// i.e. a question has been asked but the interview has not completed.
func (s SessionState) IsMidInterview() bool {
	return s == StateAskGender || s == StateAskCountry || s == StateAskNews
}

// LifecycleTag is the coarse status tracked on the remote profile.
type LifecycleTag string

const (
	// LifecycleNew marks a freshly registered profile.
	LifecycleNew LifecycleTag = "New"
	// LifecycleTested marks a profile that completed the interview.
	LifecycleTested LifecycleTag = "Tested"
	// LifecycleReader marks a profile that read the content feed to the end.
	LifecycleReader LifecycleTag = "Reader"
)

// Literal callback payload tags consumed by the state machine and feed.
const (
	TagGenderMale    = "men"
	TagGenderFemale  = "woman"
	TagCountryRussia = "Russia"
	TagCountryOther  = "other"
	TagNewsYes       = "yes"
	TagNewsNo        = "no"
	TagNextNews      = "next_news"
)

// Error variables shared across modules for classification and testing.
var (
	ErrNotRegistered     = errors.New("user has no remote profile")
	ErrInvalidChoice     = errors.New("choice is not valid for the current state")
	ErrAnswerRecorded    = errors.New("answer already recorded for this state")
	ErrStateRegression   = errors.New("session state may not move backwards")
	ErrRemoteIDImmutable = errors.New("remote profile id is already set")
	ErrMissingProfile    = errors.New("backend response is missing profile data")
)

// Session is the in-memory per-identity conversation and feed state.
// It is owned exclusively by the session store and survives only for the
// process lifetime; the remote profile is the durable record.
type Session struct {
	UserID         UserID            `json:"user_id"`
	State          SessionState      `json:"state"`
	RemoteID       int64             `json:"remote_id,omitempty"` // 0 while unregistered
	Gender         string            `json:"gender,omitempty"`
	Country        string            `json:"country,omitempty"`
	NewsPreference *bool             `json:"news_preference,omitempty"`
	FeedCursor     int               `json:"feed_cursor"`
	Attribution    map[string]string `json:"attribution,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SetRemoteID records the remote profile handle. It may be set at most once.
func (s *Session) SetRemoteID(id int64) error {
	if s.RemoteID != 0 && s.RemoteID != id {
		return ErrRemoteIDImmutable
	}
	s.RemoteID = id
	return nil
}

// Advance moves the session to the next state, enforcing that states only
// move forward in the fixed interview order.
func (s *Session) Advance(next SessionState) error {
	if next.Rank() < s.State.Rank() {
		return ErrStateRegression
	}
	s.State = next
	s.UpdatedAt = time.Now()
	return nil
}

// RemoteProfile is the authoritative follower record in the external store.
type RemoteProfile struct {
	ID             int64        `json:"id"`
	TGUserID       int64        `json:"tgUserID"`
	Name           string       `json:"name"`
	Surname        string       `json:"surname"`
	Telegram       string       `json:"telegram"`
	Gender         string       `json:"gender,omitempty"`
	Country        string       `json:"country,omitempty"`
	NewsPreference *bool        `json:"news_preference,omitempty"`
	Type           LifecycleTag `json:"type,omitempty"`
	MediaID        int64        `json:"media,omitempty"`
	UTMSource      string       `json:"utm_source,omitempty"`
	UTMMedium      string       `json:"utm_medium,omitempty"`
	UTMCampaign    string       `json:"utm_campaign,omitempty"`
}

// InterviewComplete reports whether all three answer fields are populated.
func (p *RemoteProfile) InterviewComplete() bool {
	return p.Gender != "" && p.Country != "" && p.NewsPreference != nil
}

// ProfileDraft is the payload for creating a new remote profile.
type ProfileDraft struct {
	TGUserID    int64
	Telegram    string
	Name        string
	Surname     string
	MediaID     int64 // 0 means no avatar was captured
	Attribution map[string]string
}

// ContentItem is one page of the remote content feed.
type ContentItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
	MediaURL    string `json:"media_url,omitempty"`
}

// EventKind classifies inbound transport events.
type EventKind string

const (
	// EventFirstContact is the reserved start command, optionally carrying
	// an encoded attribution payload.
	EventFirstContact EventKind = "first_contact"
	// EventMessage is any plain text message.
	EventMessage EventKind = "message"
	// EventCallback is a button-press callback with an opaque payload.
	EventCallback EventKind = "callback"
)

// Event is one inbound unit of work from the transport.
type Event struct {
	ID        string    `json:"id"` // correlation id assigned at ingestion
	Kind      EventKind `json:"kind"`
	UserID    UserID    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Text      string    `json:"text,omitempty"`    // message text or raw start payload
	Payload   string    `json:"payload,omitempty"` // callback payload
	Time      int64     `json:"time,omitempty"`    // unix timestamp from the transport
}

// Choice is one inline button attached to an outbound message. Data is the
// literal callback tag echoed back when the button is pressed.
type Choice struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Message is one outbound rendering unit: plain text or text with media,
// optionally with a small fixed set of choice buttons.
type Message struct {
	Text     string   `json:"text"`
	MediaURL string   `json:"media_url,omitempty"`
	Choices  []Choice `json:"choices,omitempty"`
}
