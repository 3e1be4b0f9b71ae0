package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Runs
	RunsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "copywriter_runs_created_total",
			Help: "Total number of runs created",
		},
	)
	RunStatusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copywriter_run_status_changes_total",
			Help: "Number of run status transitions",
		},
		[]string{"to"},
	)
	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copywriter_runs_active",
			Help: "Current number of runs being executed",
		},
	)
	RunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copywriter_run_duration_seconds",
			Help:    "Histogram of workflow durations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s..512s
		},
	)

	// Workflow
	NodeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copywriter_node_runs_total",
			Help: "Graph node executions by node and result",
		},
		[]string{"node", "result"}, // result: ok|error
	)
	DraftingPasses = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copywriter_drafting_passes",
			Help:    "Number of drafting passes per finished run",
			Buckets: []float64{1, 2, 3},
		},
	)
	DraftScores = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copywriter_draft_average_score",
			Help:    "Average score given to drafts",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
		[]string{"formula"},
	)

	// Parsing
	ParseOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copywriter_parse_outcomes_total",
			Help: "Response parser results by shape and outcome",
		},
		[]string{"shape", "outcome"}, // shape: selection|scores, outcome: parsed|repaired|extracted|requeried|defaulted
	)

	// LLM
	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copywriter_llm_requests_total",
			Help: "Number of LLM requests by model and prompt kind",
		},
		[]string{"model", "kind"},
	)
	LLMDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copywriter_llm_request_duration_seconds",
			Help:    "Duration of LLM requests",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"model"},
	)

	// DB / file storage ops
	StoreOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copywriter_store_ops_total",
			Help: "Storage operations performed",
		},
		[]string{"store", "op"}, // op: get|put|delete|list|count
	)

	// Catalog
	CatalogReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copywriter_catalog_reloads_total",
			Help: "Catalog file reloads by result",
		},
		[]string{"result"}, // result: ok|error
	)

	// Websockets
	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copywriter_event_subscribers",
			Help: "Current number of open event stream connections",
		},
	)

	// Errors
	Errors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copywriter_errors_total",
			Help: "Errors encountered in components",
		},
		[]string{"component", "type"},
	)
)

func init() {
	prometheus.MustRegister(
		// Runs
		RunsCreated,
		RunStatusChanges,
		ActiveRuns,
		RunDurationSeconds,
		// Workflow
		NodeRuns,
		DraftingPasses,
		DraftScores,
		ParseOutcomes,
		// LLM
		LLMRequests,
		LLMDurationSeconds,
		// Store
		StoreOps,
		// Catalog
		CatalogReloads,
		// WS
		EventSubscribers,
		// Errors
		Errors,
	)
}

// NewServer returns the standalone metrics server; the caller owns its lifecycle.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Register registers c, reusing an already registered collector of the same
// description so constructors can run more than once per process.
func Register[T prometheus.Collector](c T) T {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Runs
func IncRunsCreated() {
	RunsCreated.Inc()
}

func IncRunStatusChange(to string) {
	RunStatusChanges.WithLabelValues(to).Inc()
}

func IncActiveRuns() {
	ActiveRuns.Inc()
}

func DecActiveRuns() {
	ActiveRuns.Dec()
}

func ObserveRunDuration(d time.Duration) {
	RunDurationSeconds.Observe(d.Seconds())
}

// Workflow
func IncNodeRun(node, result string) {
	NodeRuns.WithLabelValues(node, result).Inc()
}

func ObserveDraftingPasses(n int) {
	DraftingPasses.Observe(float64(n))
}

func ObserveDraftScore(formula string, avg float64) {
	DraftScores.WithLabelValues(formula).Observe(avg)
}

func IncParseOutcome(shape, outcome string) {
	ParseOutcomes.WithLabelValues(shape, outcome).Inc()
}

// LLM
func IncLLMRequest(model, kind string) {
	LLMRequests.WithLabelValues(model, kind).Inc()
}

func ObserveLLMDuration(model string, d time.Duration) {
	LLMDurationSeconds.WithLabelValues(model).Observe(d.Seconds())
}

// Store
func IncStoreOp(store, op string) {
	StoreOps.WithLabelValues(store, op).Inc()
}

// Catalog
func IncCatalogReload(result string) {
	CatalogReloads.WithLabelValues(result).Inc()
}

// Websocket
func IncEventSubscribers() {
	EventSubscribers.Inc()
}

func DecEventSubscribers() {
	EventSubscribers.Dec()
}

// Errors
func IncError(component, typ string) {
	Errors.WithLabelValues(component, typ).Inc()
}
