package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindNotReady    ErrorKind = "not_ready"
	KindEngine      ErrorKind = "engine"
	KindTimeout     ErrorKind = "timeout"
	KindIO          ErrorKind = "io"
	KindUnavailable ErrorKind = "unavailable"
	KindInternal    ErrorKind = "internal"
)

// NoSegment marks an error that is not tied to a particular edit segment.
const NoSegment = -1

// Error is the discriminated error returned by the download and edit services.
type Error struct {
	Kind    ErrorKind
	Op      string
	Segment int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrTimeout) works
// regardless of message or segment.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == ""
}

// Sentinels for errors.Is checks.
var (
	ErrValidation  = &Error{Kind: KindValidation, Segment: NoSegment}
	ErrNotFound    = &Error{Kind: KindNotFound, Segment: NoSegment}
	ErrNotReady    = &Error{Kind: KindNotReady, Segment: NoSegment}
	ErrEngine      = &Error{Kind: KindEngine, Segment: NoSegment}
	ErrTimeout     = &Error{Kind: KindTimeout, Segment: NoSegment}
	ErrIO          = &Error{Kind: KindIO, Segment: NoSegment}
	ErrUnavailable = &Error{Kind: KindUnavailable, Segment: NoSegment}
)

// NewError builds an error of the given kind with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Segment: NoSegment, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and operation name to an underlying error.
func WrapError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Segment: NoSegment, Err: err}
}

// ValidationError reports a malformed request.
func ValidationError(format string, args ...interface{}) *Error {
	return NewError(KindValidation, format, args...)
}

// NotFoundError reports a missing task, source artifact or produced file.
func NotFoundError(format string, args ...interface{}) *Error {
	return NewError(KindNotFound, format, args...)
}

// WithSegment returns a copy of e tied to the given segment index.
func (e *Error) WithSegment(i int) *Error {
	cp := *e
	cp.Segment = i
	return &cp
}

// KindOf reports the kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// SegmentOf reports the segment index carried by err, or NoSegment.
func SegmentOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Segment
	}
	return NoSegment
}
