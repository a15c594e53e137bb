package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "shop"

// Registry holds the runtime collectors plus every counter below.
var Registry = newRegistry()

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return reg
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{
		Registry: Registry,
	})
}

var (
	factory = promauto.With(Registry)

	OrdersPlaced = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_placed_total",
		Help:      "Orders committed by the placement workflow.",
	})

	OrdersRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_rejected_total",
		Help:      "Placements rejected before commit, by reason.",
	}, []string{"reason"})

	StatusUpdates = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_status_updates_total",
		Help:      "Committed order status changes, by new status.",
	}, []string{"status"})

	PushMessages = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_messages_total",
		Help:      "Push deliveries by outcome.",
	}, []string{"result"})

	PrunedTokens = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "push_pruned_tokens_total",
		Help:      "Device registrations removed after a permanent delivery failure.",
	})

	EffectFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "post_commit_effect_failures_total",
		Help:      "Post-commit effects that returned an error, by effect name.",
	}, []string{"effect"})

	LowStockRecords = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "low_stock_notifications_total",
		Help:      "Low stock notification records written.",
	})
)
