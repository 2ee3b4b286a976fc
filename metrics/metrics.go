// Package metrics exports pipeline progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gmlewis/watertight/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Observer is a pipeline.Observer recording samples per outcome and their
// durations on its own registry.
type Observer struct {
	reg *prometheus.Registry

	samplesTotal    *prometheus.CounterVec
	sampleDuration  *prometheus.HistogramVec
	runSamples      prometheus.Gauge
	runPending      prometheus.Gauge
	runDuration     prometheus.Gauge
	runsTotal       prometheus.Counter
	lastRunFinished prometheus.Gauge

	log *zap.Logger
}

var _ pipeline.Observer = (*Observer)(nil)

// New returns an Observer whose metrics are prefixed with namespace.
func New(namespace string, log *zap.Logger) *Observer {
	if log == nil {
		log = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Observer{
		reg: reg,
		samplesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "samples_total",
				Help:      "Samples processed, by outcome",
			},
			[]string{"outcome"},
		),
		sampleDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sample_duration_seconds",
				Help:      "Time spent per sample in seconds, by outcome",
				Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		runSamples: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_samples",
			Help:      "Number of samples in the current run",
		}),
		runPending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_pending_samples",
			Help:      "Samples of the current run not processed yet",
		}),
		runDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last finished run in seconds",
		}),
		runsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of finished runs",
		}),
		lastRunFinished: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
		log: log.With(zap.String("component", "metrics")),
	}
}

// Registry returns the registry holding the metrics.
func (o *Observer) Registry() *prometheus.Registry { return o.reg }

// RunStarted implements pipeline.Observer.
func (o *Observer) RunStarted(total int) {
	o.runSamples.Set(float64(total))
	o.runPending.Set(float64(total))
}

// SampleFinished implements pipeline.Observer.
func (o *Observer) SampleFinished(r pipeline.SampleResult) {
	outcome := r.Outcome.String()
	o.samplesTotal.WithLabelValues(outcome).Inc()
	o.sampleDuration.WithLabelValues(outcome).Observe(r.Duration.Seconds())
	o.runPending.Dec()
}

// RunFinished implements pipeline.Observer.
func (o *Observer) RunFinished(r pipeline.Report) {
	o.runDuration.Set(r.Duration.Seconds())
	o.runsTotal.Inc()
	o.lastRunFinished.SetToCurrentTime()
}

// WriteTextfile writes the metrics in the text exposition format, for
// node_exporter's textfile collector.
func (o *Observer) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, o.reg); err != nil {
		return fmt.Errorf("WriteTextfile: %w", err)
	}
	return nil
}

// Handler serves the metrics over HTTP.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{})
}

// Serve exposes the metrics on addr at /metrics until ctx is done.
func (o *Observer) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", o.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	o.log.Info("serving metrics", zap.String("addr", addr))

	select {
	case err := <-errc:
		return fmt.Errorf("Serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("Serve: %w", err)
	}
	return nil
}
