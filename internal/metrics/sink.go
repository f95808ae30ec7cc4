// Package metrics forwards pipeline gauges to an external collector.
// Recording is best-effort: transport failures are logged and never returned.
package metrics

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Job names used by the query engine and the summarizer.
const (
	JobQuery   = "localrag_app"
	JobSummary = "localrag_summary_job"
)

// DefaultPushgatewayURL is the Pushgateway address of the local setup.
const DefaultPushgatewayURL = "http://localhost:9091"

const pushTimeout = 5 * time.Second

// Event is a snapshot of named gauges pushed under one job.
type Event struct {
	Job    string
	Gauges map[string]float64
}

// Names returns the gauge names in sorted order.
func (e Event) Names() []string {
	names := make([]string, 0, len(e.Gauges))
	for name := range e.Gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sink receives events after each query cycle and summarization run.
type Sink interface {
	Record(ctx context.Context, event Event)
}

// NopSink discards every event.
type NopSink struct{}

// Record does nothing.
func (NopSink) Record(context.Context, Event) {}

// PushSink pushes each event to a Prometheus Pushgateway.
type PushSink struct {
	url    string
	logger *slog.Logger
}

// NewPushSink creates a sink for the Pushgateway at url. A url without a
// scheme is treated as plain HTTP.
func NewPushSink(url string, logger *slog.Logger) *PushSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushSink{
		url:    NormalizeURL(url),
		logger: logger,
	}
}

// URL returns the normalized Pushgateway address.
func (s *PushSink) URL() string { return s.url }

// Record pushes the event's gauges, replacing the previous values for its job.
func (s *PushSink) Record(ctx context.Context, event Event) {
	if event.Job == "" || len(event.Gauges) == 0 {
		return
	}

	reg := prometheus.NewRegistry()
	for _, name := range event.Names() {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: name})
		gauge.Set(event.Gauges[name])
		if err := reg.Register(gauge); err != nil {
			s.logger.Warn("Skipping invalid metric", "job", event.Job, "metric", name, "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	if err := push.New(s.url, event.Job).Gatherer(reg).PushContext(ctx); err != nil {
		s.logger.Warn("Failed to push metrics", "job", event.Job, "url", s.url, "error", err)
		return
	}
	s.logger.Debug("Pushed metrics", "job", event.Job, "gauges", len(event.Gauges))
}

// NormalizeURL adds an http scheme to addresses given as host:port.
func NormalizeURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return DefaultPushgatewayURL
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	return strings.TrimRight(url, "/")
}
