package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "atelier"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint and status code.",
		},
		[]string{"endpoint", "code"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_created_total",
			Help:      "Count of booking attempts by outcome.",
		},
		[]string{"status"},
	)

	bookingStatusChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_status_changed_total",
			Help:      "Count of booking status changes by new status.",
		},
		[]string{"status"},
	)

	slotsServed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_served_total",
			Help:      "Count of slot lists returned to clients.",
		},
	)

	slotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_cache_total",
			Help:      "Slot cache lookups by result.",
		},
		[]string{"result"},
	)

	slotCompute = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_compute_seconds",
			Help:      "Time spent loading inputs and generating slots.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
	)

	integrationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "integration_errors_total",
			Help:      "Failures of outbound integrations.",
		},
		[]string{"integration"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingCreated,
			bookingStatusChanged,
			slotsServed,
			slotCache,
			slotCompute,
			integrationErrors,
		)
	})
}

func IncHTTPRequest(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncBookingStatusChanged(status string) {
	bookingStatusChanged.WithLabelValues(status).Inc()
}

func IncSlotsServed() {
	slotsServed.Inc()
}

// IncSlotCache records a cache lookup; result is "hit", "miss" or "error".
func IncSlotCache(result string) {
	slotCache.WithLabelValues(result).Inc()
}

func ObserveSlotCompute(seconds float64) {
	slotCompute.Observe(seconds)
}

func IncIntegrationError(integration string) {
	integrationErrors.WithLabelValues(integration).Inc()
}
