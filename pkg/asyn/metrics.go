package asyn

// metricsSink is the narrow internal seam the manager core pushes
// observability events through. The core never imports net/http or
// prometheus itself; a concrete Sink (see pkg/asynmetrics) is handed to
// NewManager by the embedding process.
type metricsSink interface {
	// QueueDepth reports the current length of one priority's FIFO on a port.
	QueueDepth(port string, priority Priority, depth int)
	// ConnectionState reports a connected/disconnected transition for an endpoint.
	ConnectionState(endpointName string, connected bool)
	// TimeoutFired reports that a queued request's timer fired.
	TimeoutFired(port string)
	// TraceLine reports that a trace line was emitted, for volume monitoring.
	TraceLine(port string)
}

type noopMetrics struct{}

func (noopMetrics) QueueDepth(string, Priority, int)    {}
func (noopMetrics) ConnectionState(string, bool)        {}
func (noopMetrics) TimeoutFired(string)                 {}
func (noopMetrics) TraceLine(string)                    {}

// MetricsSink is the exported alias embedding processes implement (e.g.
// pkg/asynmetrics.Sink) and pass to NewManager.
type MetricsSink = metricsSink
