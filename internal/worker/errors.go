package worker

import (
	"errors"
	"fmt"

	"github.com/mattjoyce/lexgate/internal/protocol"
)

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	// KindUnsupportedLanguage: no worker is routed for the language.
	KindUnsupportedLanguage ErrorKind = "unsupported_language"
	// KindWorkerUnavailable: the worker could not be spawned, died, or was stopped.
	KindWorkerUnavailable ErrorKind = "worker_unavailable"
	// KindProtocolViolation: the worker answered with an undecodable line.
	KindProtocolViolation ErrorKind = "protocol_violation"
)

// errWorkerStopped is the cause given to requests failed by Close.
var errWorkerStopped = errors.New("worker stopped")

// errMailboxFull is the cause given to requests rejected by a full mailbox.
var errMailboxFull = errors.New("worker mailbox full")

// Error is the error type of every failed Result.
type Error struct {
	Kind     ErrorKind
	Language string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Language != "" {
		msg += fmt.Sprintf(" (language %q)", e.Language)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err if it is, or wraps, an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Unsupported returns the routing-miss error for lang.
func Unsupported(lang string) *Error {
	return &Error{
		Kind:     KindUnsupportedLanguage,
		Language: lang,
		Detail:   "no worker available for that language",
	}
}

// Unavailable wraps a spawn or pipe failure.
func Unavailable(lang string, cause error) *Error {
	return &Error{Kind: KindWorkerUnavailable, Language: lang, Err: cause}
}

func violation(lang string, err error) *Error {
	e := &Error{Kind: KindProtocolViolation, Language: lang, Err: err}
	var decErr *protocol.DecodeError
	if errors.As(err, &decErr) {
		e.Detail = fmt.Sprintf("line: %q, cause: %v", decErr.RawLine, decErr.Cause)
	}
	return e
}
