package services

import (
	"context"
	"errors"
	"time"

	"kucoin-depth-viewer/apperrors"
	"kucoin-depth-viewer/book"
	"kucoin-depth-viewer/exchange"
	"kucoin-depth-viewer/logging"
	"kucoin-depth-viewer/models"
	"kucoin-depth-viewer/monitoring"
	"kucoin-depth-viewer/worker"
)

// Renderer consumes one depth snapshot at a time
type Renderer interface {
	Render(snapshot models.DepthSnapshot) error
}

// SessionFactory builds a fresh, disconnected feed session
type SessionFactory func() book.FeedSession

// DepthService wires token acquisition, the feed session, the decoder and the renderer
type DepthService struct {
	tokens       exchange.TokenProvider
	newSession   SessionFactory
	renderer     Renderer
	pingInterval time.Duration
	logger       *logging.Logger
}

// NewDepthService creates a service; pingInterval <= 0 disables keep-alive pings
func NewDepthService(tokens exchange.TokenProvider, newSession SessionFactory, renderer Renderer, pingInterval time.Duration, logger *logging.Logger) *DepthService {
	return &DepthService{
		tokens:       tokens,
		newSession:   newSession,
		renderer:     renderer,
		pingInterval: pingInterval,
		logger:       logger,
	}
}

// Run acquires a token, opens one session and drains it. Every return is
// an error: the end-of-stream sentinel, a classified failure, or ctx.Err().
func (s *DepthService) Run(ctx context.Context) error {
	token, err := s.tokens.AcquireToken(ctx)
	if err != nil {
		return err
	}

	session := s.newSession()
	if err := session.Open(ctx, token); err != nil {
		return err
	}
	defer session.Close()
	monitoring.SessionsOpened.Inc()

	if s.pingInterval > 0 {
		keepAlive, err := worker.StartKeepAlive(session, s.pingInterval, s.logger)
		if err != nil {
			return err
		}
		defer keepAlive.Stop()
	}

	err = s.Drain(ctx, session)
	if apperrors.Is(err, apperrors.Transport) {
		monitoring.SessionFailures.Inc()
	}
	return err
}

// Drain processes frames one at a time until the session ends. A frame that
// fails to decode is logged and skipped; a render failure is fatal.
func (s *DepthService) Drain(ctx context.Context, session book.FeedSession) error {
	logger := s.logger.With(logging.String("session", session.ID()))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := session.Next(ctx)
		if err != nil {
			if errors.Is(err, apperrors.ErrEndOfStream) {
				logger.Info("feed ended")
			}
			return err
		}
		monitoring.FramesReceived.Inc()

		event, err := book.Decode(frame)
		if err != nil {
			s.reportBadFrame(logger, frame, err)
			continue
		}
		if event == nil {
			monitoring.FramesIgnored.Inc()
			logger.Debug("ignoring non-data frame", logging.String("frame", truncateFrame(frame)))
			continue
		}

		if err := s.renderer.Render(event.Snapshot); err != nil {
			return err
		}
		monitoring.SnapshotsRendered.Inc()
	}
}

func (s *DepthService) reportBadFrame(logger *logging.Logger, frame []byte, err error) {
	label := "frame"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && appErr.Side != "" {
		label = appErr.Side
	}
	monitoring.DecodeErrors.WithLabelValues(label).Inc()
	logger.Warn("dropping frame", logging.Err(err), logging.String("frame", truncateFrame(frame)))
}

func truncateFrame(frame []byte) string {
	const maxLogged = 256
	if len(frame) > maxLogged {
		frame = frame[:maxLogged]
	}
	return string(frame)
}
