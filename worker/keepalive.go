package worker

import (
	"fmt"
	"sync/atomic"
	"time"

	"kucoin-depth-viewer/logging"
)

// Pinger is the part of a feed session the keep-alive worker needs
type Pinger interface {
	Ping() error
	ID() string
}

// KeepAliveWorker sends a ping on every cron tick until stopped
type KeepAliveWorker struct {
	session Pinger
	logger  *logging.Logger
	stopped atomic.Bool
	sent    atomic.Int64
	failed  atomic.Int64
}

// NewKeepAliveWorker creates a worker pinging session
func NewKeepAliveWorker(session Pinger, logger *logging.Logger) *KeepAliveWorker {
	return &KeepAliveWorker{
		session: session,
		logger:  logger,
	}
}

func (w *KeepAliveWorker) Execute() {
	if w.stopped.Load() {
		return
	}
	if err := w.session.Ping(); err != nil {
		w.failed.Add(1)
		w.logger.Warn("keep-alive ping failed", logging.String("session", w.session.ID()), logging.Err(err))
		return
	}
	w.sent.Add(1)
}

func (w *KeepAliveWorker) Stop() {
	w.stopped.Store(true)
}

func (w *KeepAliveWorker) GetName() string {
	return "keepalive-" + w.session.ID()
}

// Sent returns how many pings were written successfully.
func (w *KeepAliveWorker) Sent() int64 {
	return w.sent.Load()
}

// EverySchedule converts an interval into a cron spec. Intervals below one
// second are rounded up because cron cannot fire faster.
func EverySchedule(interval time.Duration) string {
	if interval < time.Second {
		interval = time.Second
	}
	return fmt.Sprintf("@every %s", interval.Truncate(time.Second))
}

// StartKeepAlive schedules pings for session and returns the running manager.
// The caller stops it when the session ends.
func StartKeepAlive(session Pinger, interval time.Duration, logger *logging.Logger) (*WorkerManager, error) {
	manager := NewWorkerManager(logger)
	w := NewKeepAliveWorker(session, logger)
	if err := manager.RegisterWorker(&WorkerConfig{
		Name:        w.GetName(),
		Schedule:    EverySchedule(interval),
		Worker:      w,
		Enabled:     true,
		Description: "application level ping for the depth feed",
	}); err != nil {
		return nil, err
	}
	manager.Start()
	return manager, nil
}
