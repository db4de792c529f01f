package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Completed ledger transactions",
		},
		[]string{"type"}, // deposit|purchase|admin_adjustment|refund
	)
	TransactionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_transactions_failed_total",
			Help: "Ledger appends rejected or failed",
		},
	)
	IntegrityViolations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_integrity_violations_total",
			Help: "Detected balance chain breaks",
		},
	)

	DepositTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deposit_requests_total",
			Help: "Deposit request transitions by resulting status",
		},
		[]string{"status"},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)
)

var Handler = promhttp.Handler()

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(TransactionsFailed)
	prometheus.MustRegister(IntegrityViolations)
	prometheus.MustRegister(DepositTransitions)
	prometheus.MustRegister(WorkerQueueDepth)
}
