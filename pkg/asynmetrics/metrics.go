// Package asynmetrics is a concrete, Prometheus-backed implementation of
// asyn.MetricsSink, grounded on the reference manager's own
// promauto/promhttp wiring: counters and gauges registered once at
// construction, a dedicated dlib-supervised HTTP server exposing
// promhttp.Handler.
package asynmetrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/datawire/dlib/dhttp"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/goasyn/pkg/asyn"
)

// Sink implements asyn.MetricsSink with Prometheus collectors. Construct
// one with NewSink and pass it to asyn.NewManager; Serve exposes it over
// HTTP when it was built against prometheus.DefaultRegisterer.
type Sink struct {
	queueDepth      *prometheus.GaugeVec
	connectionState *prometheus.GaugeVec
	timeouts        *prometheus.CounterVec
	traceLines      *prometheus.CounterVec
}

// NewSink registers a fresh set of collectors against reg and returns a
// Sink backed by them. Pass prometheus.DefaultRegisterer to publish under
// the global registry, as the reference manager does with
// prometheus.MustRegister.
func NewSink(reg prometheus.Registerer) *Sink {
	factory := promauto.With(reg)
	return &Sink{
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "asyn_queue_depth",
			Help: "Number of requests currently queued at a port and priority.",
		}, []string{"port", "priority"}),
		connectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "asyn_endpoint_connected",
			Help: "1 if the endpoint is connected, 0 otherwise.",
		}, []string{"endpoint"}),
		timeouts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "asyn_timeouts_total",
			Help: "Number of queued requests whose timeout fired before being serviced.",
		}, []string{"port"}),
		traceLines: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "asyn_trace_lines_total",
			Help: "Number of trace lines emitted.",
		}, []string{"port"}),
	}
}

// QueueDepth implements asyn.MetricsSink.
func (s *Sink) QueueDepth(port string, priority asyn.Priority, depth int) {
	s.queueDepth.WithLabelValues(port, priority.String()).Set(float64(depth))
}

// ConnectionState implements asyn.MetricsSink.
func (s *Sink) ConnectionState(endpointName string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	s.connectionState.WithLabelValues(endpointName).Set(v)
}

// TimeoutFired implements asyn.MetricsSink.
func (s *Sink) TimeoutFired(port string) {
	s.timeouts.WithLabelValues(port).Inc()
}

// TraceLine implements asyn.MetricsSink.
func (s *Sink) TraceLine(port string) {
	s.traceLines.WithLabelValues(port).Inc()
}

// Serve starts an HTTP server on addr exposing the default Prometheus
// registry's collectors (promhttp.Handler) at /metrics; collectors
// registered against any other registry are not served. It is supervised the way the reference manager supervises its own
// Prometheus endpoint: a dhttp.ServerConfig whose ListenAndServe blocks
// until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	sc := &dhttp.ServerConfig{
		Handler: promhttp.Handler(),
	}
	dlog.Infof(ctx, "metrics server started on %s", addr)
	defer dlog.Info(ctx, "metrics server stopped")
	return sc.ListenAndServe(ctx, addr)
}
