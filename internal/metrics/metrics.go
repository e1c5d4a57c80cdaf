// Package metrics регистрирует счётчики Prometheus подсистемы планов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal считает обработанные события шлюза по исходу.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_webhook_events_total",
		Help: "Processed payment gateway webhook events by result.",
	}, []string{"event", "result"})

	// CheckoutsStartedTotal считает созданные платёжные намерения.
	CheckoutsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entitlement_checkouts_started_total",
		Help: "Checkout intents started against the payment gateway.",
	})

	// ReconcilerDeactivationsTotal считает планы, деактивированные сверкой.
	ReconcilerDeactivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_reconciler_deactivations_total",
		Help: "Entitlements deactivated by the reconciliation sweep by reason.",
	}, []string{"reason"})

	// QuotaRejectionsTotal считает отклонённые проверкой квот операции.
	QuotaRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "entitlement_quota_rejections_total",
		Help: "Posting operations rejected by quota enforcement by reason.",
	}, []string{"reason"})
)
