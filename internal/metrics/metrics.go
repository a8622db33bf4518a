package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	paymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recpay",
			Name:      "payments_initiated_total",
			Help:      "Push payment requests by outcome.",
		},
		[]string{"outcome"},
	)

	paymentPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recpay",
			Name:      "payment_polls_total",
			Help:      "Status polls against the payment provider.",
		},
	)

	bookingsResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recpay",
			Name:      "bookings_resolved_total",
			Help:      "Bookings resolved by terminal status.",
		},
		[]string{"status"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recpay",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(paymentsInitiated, paymentPolls, bookingsResolved, httpRequests)
	})
}

// Handler serves the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncPaymentInitiated counts one push payment request; outcome is
// "accepted" or "rejected".
func IncPaymentInitiated(outcome string) {
	paymentsInitiated.WithLabelValues(outcome).Inc()
}

// IncPaymentPoll counts one provider status poll.
func IncPaymentPoll() {
	paymentPolls.Inc()
}

// IncBookingResolved counts a booking reaching a terminal status.
func IncBookingResolved(status string) {
	bookingsResolved.WithLabelValues(status).Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
