package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "depth_frames_received_total",
		Help: "Text frames read from the feed.",
	})

	FramesIgnored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "depth_frames_ignored_total",
		Help: "Frames that were not depth updates (acks, pongs, welcome).",
	})

	DecodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "depth_decode_errors_total",
		Help: "Frames dropped because their payload could not be decoded.",
	}, []string{"side"})

	SnapshotsRendered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "depth_snapshots_rendered_total",
		Help: "Depth snapshots written to the output sink.",
	})

	SessionsOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "depth_sessions_opened_total",
		Help: "Feed sessions that reached the subscribed state.",
	})

	SessionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "depth_session_failures_total",
		Help: "Feed sessions that ended with a transport error.",
	})
)

// Registry holds every collector above. It is separate from the default
// registry so tests can build services repeatedly without double registration.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		FramesReceived,
		FramesIgnored,
		DecodeErrors,
		SnapshotsRendered,
		SessionsOpened,
		SessionFailures,
	)
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
