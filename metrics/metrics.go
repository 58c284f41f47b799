package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/xeptore/teradl/config"
)

const namespace = "teradl"

var (
	// Registration must happen at most once, the default registry panics on duplicates.
	once sync.Once

	// Resolutions counts finished link resolutions. outcome is one of ok, not_found or canceled.
	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Finished link resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	// ResolverAttempts counts individual calls to the resolution API.
	ResolverAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolver_attempts_total",
			Help:      "Resolution API calls by result.",
		},
		[]string{"result"},
	)

	Relays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relays_total",
			Help:      "Finished relays by outcome.",
		},
		[]string{"outcome"},
	)

	RelayedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_bytes_total",
			Help:      "Bytes uploaded to chats by successful relays.",
		},
	)

	RelayStageSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_stage_duration_seconds",
			Help:      "Wall-clock time spent in each relay stage.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"stage"},
	)
)

func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			Resolutions,
			ResolverAttempts,
			Relays,
			RelayedBytes,
			RelayStageSeconds,
		)
	})
}

// Serve exposes /metrics on addr until ctx ends.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.MetricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); nil != err && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
