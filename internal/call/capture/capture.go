// Package capture owns the speech recognizer lifecycle during a call.
// The engine keeps a recognizer session alive while the session phase
// allows listening, restarting it after transient provider endings, and
// tears it down when listening must stop.
package capture

import "context"

// ErrorKind classifies recognizer failures.
type ErrorKind string

const (
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorNoSpeech         ErrorKind = "no_speech"
	ErrorAborted          ErrorKind = "aborted"
	ErrorNetwork          ErrorKind = "network"
	ErrorUnsupported      ErrorKind = "unsupported"
)

// EventKind labels recognizer output.
type EventKind string

const (
	// EventInterim is an in-progress hypothesis, display only.
	EventInterim EventKind = "interim"
	// EventFinal is a finalized utterance.
	EventFinal EventKind = "final"
	// EventError reports a recognizer failure.
	EventError EventKind = "error"
)

// Event is one recognizer output.
type Event struct {
	Kind    EventKind
	Text    string
	ErrKind ErrorKind
	Err     error
}

// Session is one live recognizer connection. The Events channel closes
// when the session ends for any reason.
type Session interface {
	Events() <-chan Event
	SendAudio(chunk []byte) error
	Close() error
}

// Recognizer creates sessions for a capture language.
type Recognizer interface {
	Start(ctx context.Context, languageCode string) (Session, error)
}
