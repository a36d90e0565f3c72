package book

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kucoin-depth-viewer/apperrors"
	"kucoin-depth-viewer/config"
	"kucoin-depth-viewer/logging"
	"kucoin-depth-viewer/models"
)

const writeTimeout = 10 * time.Second

// KucoinFeedSession implements FeedSession over a KuCoin public websocket
type KucoinFeedSession struct {
	id     string
	wsURL  string
	feed   config.FeedConfig
	dialer *websocket.Dialer
	logger *logging.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex
	state   atomic.Int32
	pingSeq atomic.Uint64
}

// pingMessage is the application level keep-alive KuCoin expects
type pingMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// NewKucoinFeedSession creates a disconnected session for the configured depth channel
func NewKucoinFeedSession(wsURL string, feed config.FeedConfig, logger *logging.Logger) *KucoinFeedSession {
	id := uuid.NewString()
	return &KucoinFeedSession{
		id:    id,
		wsURL: wsURL,
		feed:  feed,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: 15 * time.Second,
		},
		logger: logger.With(logging.String("session", id)),
	}
}

// StreamURL embeds the token as the "token" query parameter of base.
func StreamURL(base string, token models.Token) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", string(token))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (k *KucoinFeedSession) ID() string {
	return k.id
}

func (k *KucoinFeedSession) State() State {
	return State(k.state.Load())
}

// transition moves from -> to atomically; it fails if a concurrent Close won.
func (k *KucoinFeedSession) transition(from, to State) bool {
	if !k.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	k.logger.Debug("session state changed", logging.String("from", from.String()), logging.String("to", to.String()))
	return true
}

// Open connects and subscribes. The session reaches Subscribed only once the
// subscribe frame has been written.
func (k *KucoinFeedSession) Open(ctx context.Context, token models.Token) error {
	if !k.state.CompareAndSwap(int32(Disconnected), int32(Connecting)) {
		return apperrors.Newf(apperrors.Transport, "open", "session already %s", k.State())
	}

	streamURL, err := StreamURL(k.wsURL, token)
	if err != nil {
		k.transition(Connecting, Failed)
		return apperrors.New(apperrors.Transport, "open", fmt.Errorf("build stream url: %w", err))
	}

	conn, _, err := k.dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		k.transition(Connecting, Failed)
		return apperrors.New(apperrors.Transport, "open", fmt.Errorf("dial %s: %w", k.wsURL, err))
	}
	k.conn = conn

	topic := k.feed.Topic()
	if err := k.writeJSON(models.NewSubscriptionRequest(k.feed.SubscribeID, topic)); err != nil {
		k.transition(Connecting, Failed)
		_ = conn.Close()
		return apperrors.New(apperrors.Transport, "subscribe", fmt.Errorf("topic %s: %w", topic, err))
	}

	if !k.transition(Connecting, Subscribed) {
		_ = conn.Close()
		return apperrors.Newf(apperrors.Transport, "open", "session closed while connecting")
	}
	k.logger.Info("subscribed to depth channel", logging.String("topic", topic))
	return nil
}

// Next returns the payload of the next text frame, skipping binary frames.
func (k *KucoinFeedSession) Next(ctx context.Context) ([]byte, error) {
	k.transition(Subscribed, Streaming)
	switch k.State() {
	case Streaming:
	case Closed:
		return nil, apperrors.ErrEndOfStream
	case Failed:
		return nil, apperrors.Newf(apperrors.Transport, "receive", "session failed")
	default:
		return nil, apperrors.Newf(apperrors.Transport, "receive", "session not open (%s)", k.State())
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A cancelled context forces the blocked read to return.
	stop := context.AfterFunc(ctx, func() {
		_ = k.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		messageType, data, err := k.conn.ReadMessage()
		if err != nil {
			return nil, k.readFailure(ctx, err)
		}
		if messageType != websocket.TextMessage {
			k.logger.Debug("ignoring non-text frame", logging.Int("type", messageType))
			continue
		}
		return data, nil
	}
}

func (k *KucoinFeedSession) readFailure(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = k.Close()
		return ctxErr
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		if k.transition(Streaming, Closed) {
			_ = k.conn.Close()
			k.logger.Info("feed closed by peer", logging.Err(err))
		}
		return apperrors.ErrEndOfStream
	}
	if !k.transition(Streaming, Failed) {
		// Close was called locally while the read was pending
		return apperrors.ErrEndOfStream
	}
	_ = k.conn.Close()
	return apperrors.New(apperrors.Transport, "receive", err)
}

// Ping writes {"id":"<n>","type":"ping"}; the reply is an ignorable pong frame.
func (k *KucoinFeedSession) Ping() error {
	switch k.State() {
	case Subscribed, Streaming:
	default:
		return apperrors.Newf(apperrors.Transport, "ping", "session not streaming (%s)", k.State())
	}
	msg := pingMessage{
		ID:   strconv.FormatUint(k.pingSeq.Add(1), 10),
		Type: "ping",
	}
	if err := k.writeJSON(msg); err != nil {
		return apperrors.New(apperrors.Transport, "ping", err)
	}
	return nil
}

// Close sends a close frame when possible and releases the connection.
func (k *KucoinFeedSession) Close() error {
	for {
		cur := State(k.state.Load())
		if cur.Terminal() {
			return nil
		}
		if k.state.CompareAndSwap(int32(cur), int32(Closed)) {
			k.logger.Debug("session state changed", logging.String("from", cur.String()), logging.String("to", Closed.String()))
			break
		}
	}
	if k.conn == nil {
		return nil
	}

	k.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	closeErr := k.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	k.writeMu.Unlock()

	err := k.conn.Close()
	if closeErr != nil && !errors.Is(closeErr, websocket.ErrCloseSent) {
		k.logger.Debug("close frame not sent", logging.Err(closeErr))
	}
	return err
}

func (k *KucoinFeedSession) writeJSON(v any) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	if err := k.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return k.conn.WriteJSON(v)
}
