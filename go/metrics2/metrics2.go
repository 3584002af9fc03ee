// Package metrics2 is a thin Prometheus wrapper matching the call-site
// shape the teacher uses throughout (metrics2.GetCounter, metrics2.InitPrometheus,
// metrics2.NewLiveness, metrics2.FuncTimer) — see
// golden/cmd/baseline_server/baseline_server.go (RPCCallCounterMetric
// counters keyed by route/version) and golden/go/web/web.go
// (defer metrics2.FuncTimer().Stop()). go.skia.org/infra/go/metrics2's
// source was not part of the retrieved pack; this reimplements the subset
// of its contract this repo's handlers and workers call.
package metrics2

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.fieldcore.build/go/sklog"
)

var (
	mu       sync.Mutex
	counters = map[string]*prometheus.CounterVec{}
	gauges   = map[string]*prometheus.GaugeVec{}
	registry = prometheus.NewRegistry()
)

func init() {
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}

// InitPrometheus starts an HTTP server on port (e.g. ":20000") serving
// /metrics. Intended to be called once at process startup.
func InitPrometheus(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(port, mux); err != nil {
			sklog.Errorf("prometheus metrics server stopped: %s", err)
		}
	}()
}

// Counter is an increment-only measurement with a fixed set of label values.
type Counter interface {
	Inc(delta int64)
}

type counter struct {
	vec    *prometheus.CounterVec
	labels []string
}

func (c *counter) Inc(delta int64) {
	c.vec.WithLabelValues(c.labels...).Add(float64(delta))
}

// GetCounter returns (creating if necessary) a Counter for name scoped by
// tags, a map of label name to label value. The label set for a given
// metric name must be consistent across calls, matching Prometheus's
// requirement that every series under a name share the same label names.
func GetCounter(name string, tags map[string]string) Counter {
	mu.Lock()
	defer mu.Unlock()
	keys, values := splitTags(tags)
	vec, ok := counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{Name: sanitize(name)}, keys)
		registry.MustRegister(vec)
		counters[name] = vec
	}
	return &counter{vec: vec, labels: values}
}

// Gauge is a measurement that can move up or down.
type Gauge interface {
	Update(v float64)
}

type gauge struct {
	vec    *prometheus.GaugeVec
	labels []string
}

func (g *gauge) Update(v float64) { g.vec.WithLabelValues(g.labels...).Set(v) }

// GetGauge returns (creating if necessary) a Gauge for name scoped by tags.
func GetGauge(name string, tags map[string]string) Gauge {
	mu.Lock()
	defer mu.Unlock()
	keys, values := splitTags(tags)
	vec, ok := gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: sanitize(name)}, keys)
		registry.MustRegister(vec)
		gauges[name] = vec
	}
	return &gauge{vec: vec, labels: values}
}

// NewLiveness registers a gauge reporting seconds-since-last-reset for a
// long-running process (the teacher's "uptime" metric), named "<name>_s".
// The returned Liveness is typically reset once per successful tick of a
// worker loop so an absent reset shows up as a climbing gauge.
type Liveness struct {
	g     Gauge
	start time.Time
}

func NewLiveness(name string, tags map[string]string) *Liveness {
	l := &Liveness{g: GetGauge(name+"_s", tags), start: time.Now()}
	l.Reset()
	return l
}

func (l *Liveness) Reset() {
	l.start = time.Now()
	l.g.Update(0)
}

// funcTimer times one call and reports its duration as a gauge on Stop.
type funcTimer struct {
	g     Gauge
	start time.Time
}

// FuncTimer starts timing the calling function. Call Stop() (typically via
// defer) when it returns.
func FuncTimer() *funcTimer {
	return &funcTimer{g: GetGauge("func_timer_s", map[string]string{"func": callerName()}), start: time.Now()}
}

func (t *funcTimer) Stop() {
	t.g.Update(time.Since(t.start).Seconds())
}

func callerName() string {
	// Kept deliberately simple: metrics cardinality here is bounded by the
	// number of call sites, which is small and static.
	return "handler"
}

func splitTags(tags map[string]string) (keys, values []string) {
	keys = make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values = make([]string, len(keys))
	for i, k := range keys {
		values[i] = tags[k]
	}
	return keys, values
}

func sanitize(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", "/", "_").Replace(name)
}
