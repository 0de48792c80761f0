// Package dialogue runs the multi-turn symptom conversation: it collects
// symptoms across messages, asks one follow-up, asks for confirmation and
// finally hands the symptoms to the predictor.
package dialogue

import (
	"time"
)

// State is the position of a session in the conversation.
type State string

const (
	StateEmpty                State = "empty"
	StateCollecting           State = "collecting"
	StateAwaitingFollowUp     State = "awaiting_follow_up"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateResolved             State = "resolved"
)

// Session is the per-user conversation state.
type Session struct {
	UserID            string    `json:"user_id"`
	Symptoms          []string  `json:"symptoms"`
	AskedFollowUp     bool      `json:"asked_follow_up"`
	ConfirmationStage bool      `json:"confirmation_stage"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewSession returns an empty session for userID.
func NewSession(userID string, now time.Time) *Session {
	return &Session{UserID: userID, Symptoms: []string{}, CreatedAt: now, UpdatedAt: now}
}

// State derives the conversation state from the session flags.
func (s *Session) State() State {
	switch {
	case s == nil || len(s.Symptoms) == 0:
		return StateEmpty
	case s.ConfirmationStage:
		return StateAwaitingConfirmation
	case s.AskedFollowUp:
		return StateAwaitingFollowUp
	default:
		return StateCollecting
	}
}

// Merge adds symptoms not already present, keeping first-seen order, and
// returns how many were added.
func (s *Session) Merge(symptoms []string) int {
	seen := make(map[string]struct{}, len(s.Symptoms))
	for _, sym := range s.Symptoms {
		seen[sym] = struct{}{}
	}
	added := 0
	for _, sym := range symptoms {
		if _, ok := seen[sym]; ok || sym == "" {
			continue
		}
		seen[sym] = struct{}{}
		s.Symptoms = append(s.Symptoms, sym)
		added++
	}
	return added
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	c := *s
	c.Symptoms = append([]string(nil), s.Symptoms...)
	if c.Symptoms == nil {
		c.Symptoms = []string{}
	}
	return &c
}
