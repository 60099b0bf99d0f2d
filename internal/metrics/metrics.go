package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docflow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	workflowMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_workflow_mutations_total",
			Help: "Workflow configuration changes by operation and result",
		},
		[]string{"operation", "result"},
	)

	requestTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_request_transitions_total",
			Help: "Document request transitions by action and result",
		},
		[]string{"action", "result"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_notifications_total",
			Help: "Outbound notifications by template and result",
		},
		[]string{"template", "result"},
	)

	syncRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docflow_sync_runs_total",
			Help: "Assignment sync runs by trigger and result",
		},
		[]string{"trigger", "result"},
	)

	assignmentRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docflow_assignment_records",
			Help: "Number of materialized approver assignment records",
		},
	)

	fallbackReadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docflow_fallback_reads_total",
			Help: "Definitions served from the fallback cache",
		},
	)

	databaseConnectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "docflow_database_connections_open",
			Help: "Number of open database connections",
		},
	)
)

var once sync.Once

func init() {
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(workflowMutationsTotal)
	prometheus.MustRegister(requestTransitionsTotal)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(syncRunsTotal)
	prometheus.MustRegister(assignmentRecords)
	prometheus.MustRegister(fallbackReadsTotal)
	prometheus.MustRegister(databaseConnectionsOpen)
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result converts an operation error into a result label
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordAPIRequest records one HTTP request
func RecordAPIRequest(method, path string, status int, seconds float64) {
	apiRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordWorkflowMutation records a configuration service write
func RecordWorkflowMutation(operation string, err error) {
	workflowMutationsTotal.WithLabelValues(operation, Result(err)).Inc()
}

// RecordTransition records a request status engine operation
func RecordTransition(action string, err error) {
	requestTransitionsTotal.WithLabelValues(action, Result(err)).Inc()
}

// RecordNotification records a notification attempt
func RecordNotification(templateKey, result string) {
	notificationsTotal.WithLabelValues(templateKey, result).Inc()
}

// RecordSync records a sync run and the resulting assignment count
func RecordSync(trigger string, assignmentCount int, err error) {
	syncRunsTotal.WithLabelValues(trigger, Result(err)).Inc()
	if err == nil {
		assignmentRecords.Set(float64(assignmentCount))
	}
}

// SetAssignmentRecords sets the materialized assignment gauge
func SetAssignmentRecords(n int) {
	assignmentRecords.Set(float64(n))
}

// RecordFallbackRead records a definition served from the fallback cache
func RecordFallbackRead() {
	fallbackReadsTotal.Inc()
}

// UpdateDatabaseConnections samples the connection pool
func UpdateDatabaseConnections(db *sql.DB) {
	if db == nil {
		return
	}
	databaseConnectionsOpen.Set(float64(db.Stats().OpenConnections))
}

// RegisterRuntimeCollectors adds Go runtime and process collectors once
func RegisterRuntimeCollectors() {
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}
