package internal

import (
	"expvar"
	"net/http"
)

var (
	requestsTotal  = expvar.NewMap("hubhook_requests_total")
	responsesTotal = expvar.NewMap("hubhook_responses_total")
	mismatchTotal  = expvar.NewInt("hubhook_signature_mismatch_total")
	secretErrors   = expvar.NewInt("hubhook_secret_errors_total")
	publishedTotal = expvar.NewMap("hubhook_published_total")
	publishErrors  = expvar.NewMap("hubhook_publish_errors_total")
)

// IncRequest counts a delivery received on entrypoint (http or lambda).
func IncRequest(entrypoint string) {
	requestsTotal.Add(entrypoint, 1)
}

// IncResponse counts a response by status code.
func IncResponse(status string) {
	responsesTotal.Add(status, 1)
}

func IncSignatureMismatch() {
	mismatchTotal.Add(1)
}

func IncSecretError() {
	secretErrors.Add(1)
}

func IncPublished(topic string) {
	publishedTotal.Add(topic, 1)
}

func IncPublishError(topic string) {
	publishErrors.Add(topic, 1)
}

// MetricsHandler serves all expvar counters as JSON.
func MetricsHandler() http.Handler {
	return expvar.Handler()
}
