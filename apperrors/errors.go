package apperrors

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies failures of the ingestion pipeline
type Kind string

const (
	// Transport covers HTTP and websocket failures.
	Transport Kind = "transport"
	// Protocol covers well-formed responses missing the expected structure.
	Protocol Kind = "protocol"
	// Decode covers malformed per-frame payloads.
	Decode Kind = "decode"
	// Output covers failures writing to the output sink.
	Output Kind = "output"
)

// ErrEndOfStream is returned when the feed channel is closed by the peer or locally.
var ErrEndOfStream = stderrors.New("end of stream")

// Error is a classified pipeline error.
type Error struct {
	Kind  Kind
	Op    string
	Side  string
	Index int
	Err   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error in %s", e.Kind, e.Op)
	switch {
	case e.Side != "" && e.Index >= 0:
		msg += fmt.Sprintf(" (%s[%d])", e.Side, e.Index)
	case e.Side != "":
		msg += fmt.Sprintf(" (%s)", e.Side)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified error, attaching a stack trace to the cause
func New(kind Kind, op string, err error) *Error {
	if err != nil {
		if _, ok := err.(interface{ StackTrace() errors.StackTrace }); !ok {
			err = errors.WithStack(err)
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a formatted message.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.Errorf(format, args...)}
}

// Entry builds a decode error pointing at one level of one book side.
// A negative index means the side as a whole is malformed.
func Entry(side string, index int, err error) *Error {
	e := New(Decode, "decode", err)
	e.Side = side
	e.Index = index
	return e
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
