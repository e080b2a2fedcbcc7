package realtime

import "encoding/json"

// frame is the JSON envelope exchanged over the websocket. Every frame
// carries a type discriminator; subscribe/unsubscribe/send frames name a
// destination, and message frames carry the destination they were published
// to plus the payload body.
type frame struct {
	Type        string          `json:"type"`
	ID          string          `json:"id,omitempty"`
	Destination string          `json:"destination,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSend        = "send"
	frameMessage     = "message"
)

// Destination builders for the backend's subscription topology.

// SessionQueue is the identity-scoped destination for session notifications
// addressed to the user.
func SessionQueue(userID string) string {
	return "/queue/user/" + userID + "/sessions"
}

// MatchQueue is the identity-scoped destination for match notifications
// addressed to the user.
func MatchQueue(userID string) string {
	return "/queue/user/" + userID + "/matches"
}

// SessionTopic is the shared chat stream for a session.
func SessionTopic(sessionID string) string {
	return "/topic/session/" + sessionID
}

// SessionStatusTopic carries status transitions for a session.
func SessionStatusTopic(sessionID string) string {
	return "/topic/session/" + sessionID + "/status"
}

// Application-level destinations for outbound publishes.
const (
	DestSendMessage = "/app/session.sendMessage"
	DestBookSession = "/app/session.book"
)
