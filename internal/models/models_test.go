package models

import "testing"

func TestSessionStateRankOrder(t *testing.T) {
	order := []SessionState{StateNotRegistered, StateAskGender, StateAskCountry, StateAskNews, StateCompleted}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("expected %s to rank above %s", order[i], order[i-1])
		}
	}
}

func TestSessionAdvanceForwardOnly(t *testing.T) {
	s := &Session{UserID: 42, State: StateAskCountry}

	if err := s.Advance(StateAskNews); err != nil {
		t.Fatalf("forward advance failed: %v", err)
	}
	if s.State != StateAskNews {
		t.Errorf("expected state %s, got %s", StateAskNews, s.State)
	}

	if err := s.Advance(StateAskGender); err != ErrStateRegression {
		t.Errorf("expected ErrStateRegression, got %v", err)
	}
	if s.State != StateAskNews {
		t.Errorf("state changed on rejected regression: %s", s.State)
	}

	// Re-entering the same state is allowed (Completed re-entry path).
	if err := s.Advance(StateAskNews); err != nil {
		t.Errorf("same-state advance should be allowed: %v", err)
	}
}

func TestSessionSetRemoteIDOnce(t *testing.T) {
	s := &Session{UserID: 42}
	if err := s.SetRemoteID(7); err != nil {
		t.Fatalf("first SetRemoteID failed: %v", err)
	}
	if err := s.SetRemoteID(7); err != nil {
		t.Errorf("idempotent SetRemoteID with same id should succeed: %v", err)
	}
	if err := s.SetRemoteID(8); err != ErrRemoteIDImmutable {
		t.Errorf("expected ErrRemoteIDImmutable, got %v", err)
	}
	if s.RemoteID != 7 {
		t.Errorf("remote id changed: %d", s.RemoteID)
	}
}

func TestIsMidInterview(t *testing.T) {
	cases := map[SessionState]bool{
		StateNotRegistered: false,
		StateAskGender:     true,
		StateAskCountry:    true,
		StateAskNews:       true,
		StateCompleted:     false,
	}
	for state, want := range cases {
		if got := state.IsMidInterview(); got != want {
			t.Errorf("IsMidInterview(%s) = %v, want %v", state, got, want)
		}
	}
}

func TestInterviewComplete(t *testing.T) {
	yes := true
	complete := &RemoteProfile{Gender: TagGenderMale, Country: TagCountryRussia, NewsPreference: &yes}
	if !complete.InterviewComplete() {
		t.Error("profile with all answers should be complete")
	}

	partials := []*RemoteProfile{
		{Country: TagCountryRussia, NewsPreference: &yes},
		{Gender: TagGenderMale, NewsPreference: &yes},
		{Gender: TagGenderMale, Country: TagCountryRussia},
		{},
	}
	for i, p := range partials {
		if p.InterviewComplete() {
			t.Errorf("partial profile %d should not be complete", i)
		}
	}
}
