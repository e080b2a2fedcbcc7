// Package notify decodes inbound realtime envelopes into typed domain
// events and republishes them on a local fan-out bus, decoupling the
// transport from its consumers. Unknown or malformed envelopes degrade to a
// generic update event rather than being dropped, so consumers always
// observe something for any message the backend sends.
package notify

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Kind is a domain event kind. The set is closed; anything the decoder
// cannot place lands on KindUpdate.
type Kind string

const (
	KindSessionRequested Kind = "session.requested"
	KindSessionAccepted  Kind = "session.accepted"
	KindSessionStarted   Kind = "session.started"
	KindSessionCompleted Kind = "session.completed"
	KindSessionCancelled Kind = "session.cancelled"
	KindMatchFound       Kind = "match.found"
	KindChatMessage      Kind = "chat.message"
	KindUpdate           Kind = "update"
)

// Event is a decoded realtime notification.
type Event struct {
	Kind  Kind
	Topic string

	// Envelope holds the common notification fields; Raw preserves the
	// full payload for consumers that need more.
	Envelope Envelope
	Raw      json.RawMessage
}

// Envelope is the JSON wrapper of a realtime message. The backend uses
// notificationType for session traffic and type elsewhere.
type Envelope struct {
	NotificationType string `json:"notificationType"`
	Type             string `json:"type"`
	Message          string `json:"message"`
	SessionID        int64  `json:"sessionId"`
	SkillName        string `json:"skillName"`
	MentorName       string `json:"mentorName"`
	LearnerName      string `json:"learnerName"`
	SenderName       string `json:"senderName"`
	Content          string `json:"content"`
}

// Handler consumes routed events. Handlers run synchronously on the routing
// goroutine and must not block.
type Handler func(Event)

// Registration is the disposable handle returned by On.
type Registration struct {
	router *Router
	kind   Kind
	id     int
}

// Off removes the registration. Safe to call more than once.
func (r *Registration) Off() {
	r.router.off(r.kind, r.id)
}

// Router is the local event bus.
type Router struct {
	mu       sync.Mutex
	nextID   int
	handlers map[Kind]map[int]Handler
}

func NewRouter() *Router {
	return &Router{handlers: map[Kind]map[int]Handler{}}
}

// On registers a handler for an event kind. Multiple handlers may listen to
// the same kind; each receives every event of that kind.
func (r *Router) On(kind Kind, handler Handler) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID

	if r.handlers[kind] == nil {
		r.handlers[kind] = map[int]Handler{}
	}
	r.handlers[kind][id] = handler

	return &Registration{router: r, kind: kind, id: id}
}

func (r *Router) off(kind Kind, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handlers[kind], id)
}

// Route decodes one inbound envelope and fans the event out to every
// handler registered for its kind.
func (r *Router) Route(topic string, raw json.RawMessage) {
	event := Decode(topic, raw)

	r.mu.Lock()
	registered := r.handlers[event.Kind]
	handlers := make([]Handler, 0, len(registered))
	for _, h := range registered {
		handlers = append(handlers, h)
	}
	r.mu.Unlock()

	if len(handlers) == 0 {
		log.Debug().Str("kind", string(event.Kind)).Str("topic", topic).Msg("notify: no listeners for event")
	}

	for _, h := range handlers {
		h(event)
	}
}

// Decode maps an envelope to its event kind. The declared type wins; the
// topic decides for typeless traffic (match queues, chat streams).
func Decode(topic string, raw json.RawMessage) Event {
	event := Event{Kind: KindUpdate, Topic: topic, Raw: raw}

	if err := json.Unmarshal(raw, &event.Envelope); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("notify: malformed envelope, degrading to update")
		return event
	}

	declared := event.Envelope.NotificationType
	if declared == "" {
		declared = event.Envelope.Type
	}

	switch declared {
	case "REQUEST":
		event.Kind = KindSessionRequested
	case "ACCEPTED":
		event.Kind = KindSessionAccepted
	case "STARTED", "LIVE", "IN_PROGRESS":
		event.Kind = KindSessionStarted
	case "COMPLETED":
		event.Kind = KindSessionCompleted
	case "CANCELLED_BY_MENTOR", "CANCELLED_BY_LEARNER":
		event.Kind = KindSessionCancelled
	case "MATCH_FOUND":
		event.Kind = KindMatchFound
	case "CHAT":
		event.Kind = KindChatMessage
	default:
		switch {
		case strings.HasSuffix(topic, "/matches"):
			event.Kind = KindMatchFound
		case strings.HasPrefix(topic, "/topic/session/") && !strings.HasSuffix(topic, "/status"):
			event.Kind = KindChatMessage
		default:
			// unknown type: observable as a generic update
			event.Kind = KindUpdate
		}
	}

	return event
}
