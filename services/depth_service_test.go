package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"kucoin-depth-viewer/apperrors"
	"kucoin-depth-viewer/book"
	"kucoin-depth-viewer/display"
	"kucoin-depth-viewer/logging"
	"kucoin-depth-viewer/models"
	"kucoin-depth-viewer/monitoring"
)

type frame struct {
	data string
	err  error
}

// scriptedSession replays frames, then reports end of stream.
type scriptedSession struct {
	frames  []frame
	openErr error
	token   models.Token
	opened  bool
	closed  bool
	reads   int
}

func (s *scriptedSession) Open(ctx context.Context, token models.Token) error {
	s.token = token
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	return nil
}

func (s *scriptedSession) Next(ctx context.Context) ([]byte, error) {
	s.reads++
	if len(s.frames) == 0 {
		return nil, apperrors.ErrEndOfStream
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.data), nil
}

func (s *scriptedSession) Ping() error { return nil }
func (s *scriptedSession) Close() error { s.closed = true; return nil }
func (s *scriptedSession) State() book.State { return book.Streaming }
func (s *scriptedSession) ID() string { return "test-session" }

type staticTokens struct {
	token models.Token
	err   error
	calls int
}

func (s *staticTokens) AcquireToken(ctx context.Context) (models.Token, error) {
	s.calls++
	return s.token, s.err
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func newService(t *testing.T, tokens *staticTokens, session *scriptedSession, out io.Writer) *DepthService {
	t.Helper()
	factory := func() book.FeedSession { return session }
	return NewDepthService(tokens, factory, display.NewTableRenderer(out), 0, logging.FromZap(zaptest.NewLogger(t)))
}

func TestRunRendersDepthUpdates(t *testing.T) {
	tokens := &staticTokens{token: "abc123"}
	session := &scriptedSession{frames: []frame{
		{data: `{"id":"welcome","type":"welcome"}`},
		{data: `{"type":"ack"}`},
		{data: `{"type":"message","data":{"asks":[["1801.50",3]],"bids":[["1800.00",7]]}}`},
	}}
	var out bytes.Buffer

	rendered := testutil.ToFloat64(monitoring.SnapshotsRendered)
	ignored := testutil.ToFloat64(monitoring.FramesIgnored)

	err := newService(t, tokens, session, &out).Run(context.Background())

	assert.ErrorIs(t, err, apperrors.ErrEndOfStream)
	assert.Equal(t, models.Token("abc123"), session.token)
	assert.True(t, session.closed)
	assert.Equal(t, "Type\tPrice\t\tSize\nA\t1801.50\t\t3\nB\t1800.00\t\t7\n", out.String())
	assert.Equal(t, rendered+1, testutil.ToFloat64(monitoring.SnapshotsRendered))
	assert.Equal(t, ignored+2, testutil.ToFloat64(monitoring.FramesIgnored))
}

func TestDrainAckProducesNoOutput(t *testing.T) {
	session := &scriptedSession{frames: []frame{{data: `{"type":"ack"}`}}}
	var out bytes.Buffer

	err := newService(t, &staticTokens{}, session, &out).Drain(context.Background(), session)

	assert.ErrorIs(t, err, apperrors.ErrEndOfStream)
	assert.Empty(t, out.String())
	assert.Equal(t, 2, session.reads, "loop continues after the ack")
}

func TestDrainSkipsMalformedFrames(t *testing.T) {
	session := &scriptedSession{frames: []frame{
		{data: `{"type":"message","data":{"asks":[["abc",5]],"bids":[]}}`},
		{data: `garbage`},
		{data: `{"type":"message","data":{"asks":[],"bids":[["1800",1]]}}`},
	}}
	var out bytes.Buffer

	askErrors := testutil.ToFloat64(monitoring.DecodeErrors.WithLabelValues(book.SideAsk))
	frameErrors := testutil.ToFloat64(monitoring.DecodeErrors.WithLabelValues("frame"))

	err := newService(t, &staticTokens{}, session, &out).Drain(context.Background(), session)

	assert.ErrorIs(t, err, apperrors.ErrEndOfStream)
	assert.Equal(t, "Type\tPrice\t\tSize\nB\t1800.00\t\t1\n", out.String())
	assert.Equal(t, askErrors+1, testutil.ToFloat64(monitoring.DecodeErrors.WithLabelValues(book.SideAsk)))
	assert.Equal(t, frameErrors+1, testutil.ToFloat64(monitoring.DecodeErrors.WithLabelValues("frame")))
}

func TestDrainIgnoresServerErrorFrames(t *testing.T) {
	session := &scriptedSession{frames: []frame{
		{data: `{"id":"1","type":"error","code":401,"data":"token is invalid"}`},
		{data: `{"type":"message","data":{"asks":[],"bids":[["1800",1]]}}`},
	}}
	var out bytes.Buffer

	ignored := testutil.ToFloat64(monitoring.FramesIgnored)
	frameErrors := testutil.ToFloat64(monitoring.DecodeErrors.WithLabelValues("frame"))

	err := newService(t, &staticTokens{}, session, &out).Drain(context.Background(), session)

	assert.ErrorIs(t, err, apperrors.ErrEndOfStream)
	assert.Equal(t, "Type\tPrice\t\tSize\nB\t1800.00\t\t1\n", out.String())
	assert.Equal(t, ignored+1, testutil.ToFloat64(monitoring.FramesIgnored))
	assert.Equal(t, frameErrors, testutil.ToFloat64(monitoring.DecodeErrors.WithLabelValues("frame")))
}

func TestDrainStopsOnTransportError(t *testing.T) {
	transportErr := apperrors.New(apperrors.Transport, "receive", io.ErrUnexpectedEOF)
	session := &scriptedSession{frames: []frame{
		{data: `{"type":"message","data":{"asks":[],"bids":[["1800",1]]}}`},
		{err: transportErr},
		{data: `{"type":"message","data":{"asks":[],"bids":[["1700",1]]}}`},
	}}
	var out bytes.Buffer

	err := newService(t, &staticTokens{}, session, &out).Drain(context.Background(), session)

	assert.ErrorIs(t, err, transportErr)
	assert.Equal(t, 2, session.reads)
	assert.NotContains(t, out.String(), "1700")
}

func TestDrainRenderFailureIsFatal(t *testing.T) {
	session := &scriptedSession{frames: []frame{
		{data: `{"type":"message","data":{"asks":[],"bids":[["1800",1]]}}`},
		{data: `{"type":"message","data":{"asks":[],"bids":[["1801",1]]}}`},
	}}

	err := newService(t, &staticTokens{}, session, failingWriter{}).Drain(context.Background(), session)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Output))
	assert.Equal(t, 1, session.reads)
}

func TestDrainHonoursCancellation(t *testing.T) {
	session := &scriptedSession{frames: []frame{{data: `{"type":"ack"}`}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newService(t, &staticTokens{}, session, io.Discard).Drain(ctx, session)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, session.reads, "no receive after cancellation")
}

func TestRunTokenFailureSkipsStream(t *testing.T) {
	tokenErr := apperrors.Newf(apperrors.Transport, "acquire token", "timeout")
	tokens := &staticTokens{err: tokenErr}
	session := &scriptedSession{}

	err := newService(t, tokens, session, io.Discard).Run(context.Background())

	assert.True(t, errors.Is(err, tokenErr))
	assert.False(t, session.opened, "no stream connection without a token")
	assert.Zero(t, session.reads)
}

func TestRunOpenFailure(t *testing.T) {
	openErr := apperrors.Newf(apperrors.Transport, "open", "dial refused")
	session := &scriptedSession{openErr: openErr}

	err := newService(t, &staticTokens{token: "abc123"}, session, io.Discard).Run(context.Background())

	assert.ErrorIs(t, err, openErr)
	assert.Zero(t, session.reads)
}
