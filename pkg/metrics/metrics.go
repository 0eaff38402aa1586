package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery pipeline metrics
var (
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okapi_deliveries_total",
			Help: "Total number of inbound deliveries processed",
		},
		[]string{"result"}, // delivered, blocked, dropped, error
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "okapi_delivery_duration_seconds",
			Help:    "Duration of delivery processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	MessageSizeBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "okapi_message_size_bytes",
			Help:    "Size of received messages in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	RecipientsPerDelivery = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "okapi_recipients_per_delivery",
			Help:    "Number of resolved local recipients per delivery",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25, 50},
		},
	)

	AttachmentsBlocked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "okapi_attachments_blocked_total",
			Help: "Total number of deliveries rejected for dangerous attachments",
		},
	)

	JunkClassifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okapi_junk_classifications_total",
			Help: "Total number of per-recipient junk filter decisions",
		},
		[]string{"verdict"}, // junk, clean, safe
	)
)

// Rule engine metrics
var (
	RuleEvaluationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "okapi_rule_evaluations_total",
			Help: "Total number of per-recipient rule set evaluations",
		},
	)

	RuleMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okapi_rule_matches_total",
			Help: "Total number of rules that fired during evaluation",
		},
		[]string{"rule"},
	)

	RuleSetsSeeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "okapi_rule_sets_seeded_total",
			Help: "Total number of default rule catalogues seeded for new users",
		},
	)
)

// Classifier metrics
var (
	ClassifierRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okapi_classifier_requests_total",
			Help: "Total number of external classifier calls",
		},
		[]string{"status"}, // success, error
	)

	ClassifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "okapi_classifier_duration_seconds",
			Help:    "Duration of external classifier calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Database performance metrics
var (
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okapi_db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"operation", "status", "role"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "okapi_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		},
		[]string{"operation", "role"},
	)

	DBTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okapi_db_transactions_total",
			Help: "Total number of database transactions",
		},
		[]string{"outcome"}, // commit, rollback
	)

	DBTransactionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "okapi_db_transaction_duration_seconds",
			Help:    "Duration of database transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0},
		},
	)

	DBPoolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "okapi_db_pool_total_conns",
			Help: "Total number of connections in the pool",
		},
		[]string{"role"},
	)

	DBPoolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "okapi_db_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		},
		[]string{"role"},
	)

	DBPoolInUseConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "okapi_db_pool_in_use_conns",
			Help: "Number of connections currently in use",
		},
		[]string{"role"},
	)
)

// Thread repair metrics
var (
	ThreadRepairMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "okapi_thread_repair_messages_total",
			Help: "Messages examined and backfilled by the thread repair job",
		},
		[]string{"outcome"}, // repaired, skipped, error
	)
)
