package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a pipeline failure. Transient kinds (network, timeout) are
// retried internally before being surfaced; the rest are surfaced
// immediately and never retried.
type Kind string

const (
	KindNetwork        Kind = "network"
	KindTimeout        Kind = "timeout"
	KindSessionExpired Kind = "session_expired"
	KindValidation     Kind = "validation"
	KindServer         Kind = "server"
	KindChannel        Kind = "channel"
)

// Error is the single failure value surfaced by the request pipeline.
type Error struct {
	Kind    Kind
	Message string

	// Status is the HTTP status code, when the failure came from a
	// response rather than the transport.
	Status int

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind reports whether err is a pipeline error of the given kind.
func IsKind(err error, kind Kind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// IsSessionExpired reports whether err indicates the session has ended and
// the user must sign in again.
func IsSessionExpired(err error) bool {
	return IsKind(err, KindSessionExpired)
}

// errorBody is the error document shape the backend uses: a message plus an
// optional list or map of field-level messages.
type errorBody struct {
	Message  string          `json:"message"`
	ErrorMsg string          `json:"error"`
	Errors   json.RawMessage `json:"errors"`
}

// errorFromResponse maps a non-2xx response to a validation (4xx) or server
// (5xx) error, folding any field-level messages into the diagnostic.
func errorFromResponse(status int, body []byte) *Error {
	kind := KindValidation
	if status >= http.StatusInternalServerError {
		kind = KindServer
	}

	var payload errorBody
	_ = json.Unmarshal(body, &payload)

	message := payload.Message
	if message == "" {
		message = payload.ErrorMsg
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}

	if details := errorDetails(payload.Errors); len(details) > 0 {
		message += "\n" + strings.Join(details, "\n")
	}

	return &Error{Kind: kind, Message: message, Status: status}
}

// errorDetails decodes the backend's errors field, which is either an array
// of messages or a map of field name to message.
func errorDetails(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var fields map[string]string
	if err := json.Unmarshal(raw, &fields); err == nil {
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)

		details := make([]string, 0, len(fields))
		for _, name := range names {
			details = append(details, fields[name])
		}
		return details
	}

	return nil
}
