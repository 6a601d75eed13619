package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WithdrawalsTotal counts withdrawals by final outcome
	WithdrawalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_withdrawals_total",
			Help: "Total number of withdrawal requests by outcome",
		},
		[]string{"token", "outcome"},
	)

	// WithdrawalDuration tracks end-to-end withdrawal processing time
	WithdrawalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "exchange_withdrawal_duration_seconds",
			Help:    "Withdrawal processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"token"},
	)

	// RateLimitRejections counts withdrawals rejected at admission
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_rate_limit_rejections_total",
			Help: "Total number of withdrawals rejected by the rate limiter",
		},
	)

	// DepositsDetected counts deposits credited by the watcher
	DepositsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_deposits_detected_total",
			Help: "Total number of deposits detected by the watcher",
		},
		[]string{"token"},
	)

	// WatcherTickDuration tracks the duration of a full watcher pass
	WatcherTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "exchange_watcher_tick_duration_seconds",
			Help:    "Duration of a deposit watcher polling pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WatermarkRegressions counts observed on-chain balance decreases
	WatermarkRegressions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_watermark_regressions_total",
			Help: "Total number of wallet balance decreases observed on chain",
		},
		[]string{"token"},
	)

	// PendingAnomalies counts withdrawals found PENDING at startup
	PendingAnomalies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_pending_anomalies_total",
			Help: "Withdrawal log entries found PENDING during startup recovery",
		},
	)

	// ExternalSubmitRetries counts retried external submissions
	ExternalSubmitRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "exchange_external_submit_retries_total",
			Help: "Total number of retried external transfer submissions",
		},
	)

	// ErrorsTotal counts errors by component
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exchange_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
