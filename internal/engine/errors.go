package engine

import (
	"errors"
	"fmt"
)

// ErrorKind splits engine failures into the classes the worker's retry
// policy cares about.
type ErrorKind string

const (
	// KindTransient covers connectivity failures worth retrying.
	KindTransient ErrorKind = "transient"
	// KindFatal covers missing models, malformed workflows and other
	// errors retrying cannot fix.
	KindFatal ErrorKind = "fatal"
	// KindTimeout means the engine never completed within the bound.
	KindTimeout ErrorKind = "timeout"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: %s: %v", e.Message, e.Err)
	}
	return "engine: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Transientf(err error, format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...), Err: err}
}

func Fatalf(format string, args ...any) *Error {
	return &Error{Kind: KindFatal, Message: fmt.Sprintf(format, args...)}
}

func Timeoutf(format string, args ...any) *Error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the classification of err, defaulting unknown errors to
// transient so connectivity blips get their retries.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

func IsTransient(err error) bool { return KindOf(err) == KindTransient }
