package domain

// ChatRequest is the payload handed from the webhook responders to the
// conversation worker.
type ChatRequest struct {
	Prompt        string `json:"prompt"`
	ChannelID     string `json:"channel_id"`
	UserID        string `json:"user_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// SessionID returns the key of the session this request belongs to.
func (r ChatRequest) SessionID() string {
	return SessionID(r.UserID, r.ChannelID)
}
