package book

import (
	"context"

	"kucoin-depth-viewer/models"
)

// State is the lifecycle position of a feed session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Streaming
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Subscribed:
		return "subscribed"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further frames can be read in this state.
func (s State) Terminal() bool {
	return s == Closed || s == Failed
}

// FeedSession defines the interface for one streaming connection to the depth feed
type FeedSession interface {
	// Open dials the stream with the given token and sends the subscription request.
	// It may be called once per session.
	Open(ctx context.Context, token models.Token) error

	// Next blocks until one text frame arrives. It returns apperrors.ErrEndOfStream
	// once the channel is closed and a transport error if the channel fails.
	// Cancelling ctx unblocks a pending read and returns ctx.Err().
	Next(ctx context.Context) ([]byte, error)

	// Ping sends an application level keep-alive frame.
	Ping() error

	// Close tears the session down. It is safe to call more than once.
	Close() error

	State() State
	ID() string
}
