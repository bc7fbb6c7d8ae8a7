package domain

import "time"

// Phase is derived from the number of accumulated preferences; it is never
// stored.
type Phase string

const (
	PhaseQuestioning  Phase = "QUESTIONING"
	PhaseRecommending Phase = "RECOMMENDING"
)

const (
	// PreferenceThreshold is the number of preferences that moves a session
	// into the recommending phase.
	PreferenceThreshold = 2

	// SessionTTL bounds the lifetime of a session from its creation.
	SessionTTL = time.Hour
)

// Session is the per-(user, channel) conversation state.
type Session struct {
	ID          string
	Round       int
	Preferences []string
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// SessionID builds the composite session key.
func SessionID(userID, channelID string) string {
	return userID + "#" + channelID
}

// NewSession returns a fresh round-zero session expiring one hour after now.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:          id,
		Round:       0,
		Preferences: []string{},
		UpdatedAt:   now,
		ExpiresAt:   now.Add(SessionTTL),
	}
}

// Phase reports the conversation phase of s.
func (s Session) Phase() Phase {
	if len(s.Preferences) < PreferenceThreshold {
		return PhaseQuestioning
	}
	return PhaseRecommending
}

// Expired reports whether the session outlived its TTL at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
