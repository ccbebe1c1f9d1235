// Package metrics defines the instrumentation contract for the facilitator.
package metrics

import "time"

// Event names recorded through the Recorder.
const (
	EventChallengeIssued = "challenge_issued"
	EventPayloadRejected = "payload_rejected"
	EventPaymentVerified = "payment_verified"
	EventPaymentSettled  = "payment_settled"
	EventPaymentFailed   = "payment_failed"
	EventBackendError    = "backend_error"
)

// Operation names for latency observations.
const (
	OpSimulate = "simulate"
	OpSettle   = "settle"
	OpRelay    = "relay"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
