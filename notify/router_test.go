package notify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_DeclaredTypes(t *testing.T) {
	cases := []struct {
		declared string
		want     Kind
	}{
		{"REQUEST", KindSessionRequested},
		{"ACCEPTED", KindSessionAccepted},
		{"STARTED", KindSessionStarted},
		{"LIVE", KindSessionStarted},
		{"IN_PROGRESS", KindSessionStarted},
		{"COMPLETED", KindSessionCompleted},
		{"CANCELLED_BY_MENTOR", KindSessionCancelled},
		{"CANCELLED_BY_LEARNER", KindSessionCancelled},
		{"MATCH_FOUND", KindMatchFound},
		{"CHAT", KindChatMessage},
		{"SOMETHING_NEW", KindUpdate},
	}

	for _, tc := range cases {
		t.Run(tc.declared, func(t *testing.T) {
			raw, err := json.Marshal(map[string]any{
				"notificationType": tc.declared,
				"sessionId":        9,
				"message":          "hello",
			})
			require.NoError(t, err)

			event := Decode("/queue/user/42/sessions", raw)
			assert.Equal(t, tc.want, event.Kind)
			assert.Equal(t, int64(9), event.Envelope.SessionID)
			assert.Equal(t, "hello", event.Envelope.Message)
		})
	}
}

func TestDecode_TypeFieldFallback(t *testing.T) {
	event := Decode("/queue/user/42/sessions", json.RawMessage(`{"type":"ACCEPTED"}`))
	assert.Equal(t, KindSessionAccepted, event.Kind)
}

func TestDecode_TopicFallback(t *testing.T) {
	cases := []struct {
		name  string
		topic string
		want  Kind
	}{
		{"match queue", "/queue/user/42/matches", KindMatchFound},
		{"chat stream", "/topic/session/9", KindChatMessage},
		{"status stream", "/topic/session/9/status", KindUpdate},
		{"unknown", "/queue/user/42/other", KindUpdate},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			event := Decode(tc.topic, json.RawMessage(`{"mentorName":"Avery"}`))
			assert.Equal(t, tc.want, event.Kind)
			assert.Equal(t, tc.topic, event.Topic)
		})
	}
}

func TestDecode_MalformedEnvelope(t *testing.T) {
	raw := json.RawMessage(`not json at all`)
	event := Decode("/queue/user/42/sessions", raw)

	assert.Equal(t, KindUpdate, event.Kind)
	assert.Equal(t, raw, event.Raw, "raw payload preserved for consumers")
}

func TestRouter_FanOut(t *testing.T) {
	router := NewRouter()

	var first, second []Event
	router.On(KindSessionAccepted, func(e Event) { first = append(first, e) })
	router.On(KindSessionAccepted, func(e Event) { second = append(second, e) })
	router.On(KindChatMessage, func(e Event) { t.Error("chat handler must not fire") })

	router.Route("/queue/user/42/sessions", json.RawMessage(`{"notificationType":"ACCEPTED","sessionId":9}`))

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, int64(9), first[0].Envelope.SessionID)
	assert.Equal(t, first[0], second[0])
}

func TestRouter_Off(t *testing.T) {
	router := NewRouter()

	var calls int
	reg := router.On(KindMatchFound, func(Event) { calls++ })

	router.Route("/queue/user/42/matches", json.RawMessage(`{}`))
	assert.Equal(t, 1, calls)

	reg.Off()
	reg.Off() // safe to repeat

	router.Route("/queue/user/42/matches", json.RawMessage(`{}`))
	assert.Equal(t, 1, calls, "removed handler no longer fires")
}

func TestRouter_RouteWithNoListeners(t *testing.T) {
	router := NewRouter()

	// must not panic
	router.Route("/queue/user/42/sessions", json.RawMessage(`{"notificationType":"REQUEST"}`))
}

func TestDecode_ChatEnvelopeFields(t *testing.T) {
	raw := json.RawMessage(`{"senderName":"Avery","content":"hey","sessionId":9}`)
	event := Decode("/topic/session/9", raw)

	assert.Equal(t, KindChatMessage, event.Kind)
	assert.Equal(t, "Avery", event.Envelope.SenderName)
	assert.Equal(t, "hey", event.Envelope.Content)
}
