package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxConcurrentScrapes bounds parallel /metrics requests.
const maxConcurrentScrapes = 4

// MetricsHandler serves the API's collectors from the default registry.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return MetricsHandlerFor(prometheus.DefaultGatherer)
}

// MetricsHandlerFor serves gatherer in the Prometheus text or OpenMetrics
// format. A collector that fails is reported in the body and the rest are
// still served.
func MetricsHandlerFor(gatherer prometheus.Gatherer) fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling:       promhttp.ContinueOnError,
		MaxRequestsInFlight: maxConcurrentScrapes,
		EnableOpenMetrics:   true,
	}))
}
