package core

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the pipeline can report.
type Kind string

const (
	KindPermissionDenied    Kind = "permission_denied"
	KindDeviceUnavailable   Kind = "device_unavailable"
	KindInsecureContext     Kind = "insecure_context"
	KindUnsupportedFormat   Kind = "unsupported_format"
	KindRecordingTooShort   Kind = "recording_too_short"
	KindNoSpeechDetected    Kind = "no_speech_detected"
	KindServiceUnauthorized Kind = "service_unauthorized"
	KindServiceRateLimited  Kind = "service_rate_limited"
	KindServiceError        Kind = "service_error"
	KindMalformedExtraction Kind = "malformed_extraction"
	KindCouldNotUnderstand  Kind = "could_not_understand"
	KindInvalidCategory     Kind = "invalid_category"
	KindStorageError        Kind = "storage_error"
	KindAuthRequired        Kind = "auth_required"
	KindRateLimited         Kind = "rate_limited"
	KindUnexpected          Kind = "unexpected"
)

// Error carries a Kind plus the optional raw upstream message.
type Error struct {
	Kind     Kind
	Message  string
	Upstream string
	Err      error
}

// Sentinels for errors.Is; matching compares kinds only.
var (
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
	ErrDeviceUnavailable   = &Error{Kind: KindDeviceUnavailable}
	ErrInsecureContext     = &Error{Kind: KindInsecureContext}
	ErrUnsupportedFormat   = &Error{Kind: KindUnsupportedFormat}
	ErrRecordingTooShort   = &Error{Kind: KindRecordingTooShort}
	ErrNoSpeechDetected    = &Error{Kind: KindNoSpeechDetected}
	ErrServiceUnauthorized = &Error{Kind: KindServiceUnauthorized}
	ErrServiceRateLimited  = &Error{Kind: KindServiceRateLimited}
	ErrServiceError        = &Error{Kind: KindServiceError}
	ErrMalformedExtraction = &Error{Kind: KindMalformedExtraction}
	ErrCouldNotUnderstand  = &Error{Kind: KindCouldNotUnderstand}
	ErrInvalidCategory     = &Error{Kind: KindInvalidCategory}
	ErrStorage             = &Error{Kind: KindStorageError}
	ErrAuthRequired        = &Error{Kind: KindAuthRequired}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrUnexpected          = &Error{Kind: KindUnexpected}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Upstream builds a service error that keeps the raw upstream message for diagnosis.
func Upstream(kind Kind, msg, upstream string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Upstream: upstream, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Upstream != "" {
		msg += ": " + e.Upstream
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the kind of err; errors outside the taxonomy are Unexpected.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}

var userMessages = map[Kind]string{
	KindPermissionDenied:    "Microphone access was denied. Allow microphone access and try again.",
	KindDeviceUnavailable:   "No microphone was found or it is in use by another application.",
	KindInsecureContext:     "Recording requires a secure (HTTPS) connection.",
	KindUnsupportedFormat:   "This device does not support a usable audio recording format.",
	KindRecordingTooShort:   "Recording was too short or empty. Please try again.",
	KindNoSpeechDetected:    "No speech detected. Please speak clearly and try again.",
	KindServiceUnauthorized: "The speech service rejected our credentials.",
	KindServiceRateLimited:  "The speech service is busy. Please wait a moment and try again.",
	KindServiceError:        "The speech service failed to process the request.",
	KindMalformedExtraction: "Could not read the expense details returned by the language model.",
	KindCouldNotUnderstand:  "Could not understand an expense in what you said. Please try again.",
	KindInvalidCategory:     "The expense category could not be resolved.",
	KindStorageError:        "Failed to save the expense.",
	KindAuthRequired:        "Authorization required",
	KindRateLimited:         "Too many requests. Please wait a minute and try again.",
	KindUnexpected:          "Something went wrong. Please try again.",
}

// UserMessage returns the user-facing text for err. Service failures carry
// the raw upstream message so they are never silently swallowed.
func UserMessage(err error) string {
	kind := KindOf(err)
	msg, ok := userMessages[kind]
	if !ok {
		msg = userMessages[KindUnexpected]
	}
	var e *Error
	if errors.As(err, &e) && e.Upstream != "" {
		msg += " (" + e.Upstream + ")"
	}
	return msg
}
