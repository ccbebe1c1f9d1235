// Package proxy relays requests to the content backend, attaching
// proof-of-payment metadata when a settlement occurred.
package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/payment"
	"github.com/vitwit/x402-facilitator/types"
)

// Trust headers added to backend-bound requests for paid resources.
const (
	HeaderFacilitatorVerified = "X-Facilitator-Verified"
	HeaderPaymentSettled      = "X-Payment-Settled"
	HeaderPaymentResponse     = "PAYMENT-RESPONSE"
)

// Relay forwards requests to the content backend. The backend is never
// retried; an unreachable backend is the caller's 502.
type Relay struct {
	backendURL string
	network    types.Network
	client     *http.Client
	log        logger.Logger
	rec        metrics.Recorder
}

func NewRelay(backendURL string, network types.Network, timeout time.Duration, log logger.Logger, rec metrics.Recorder) *Relay {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Relay{
		backendURL: strings.TrimRight(backendURL, "/"),
		network:    network,
		client:     &http.Client{Timeout: timeout},
		log:        log,
		rec:        rec,
	}
}

// Forward relays req to the backend at resourcePath and writes the
// backend's response to w.
//
// With a nil record (unprotected resource) the request and response pass
// through untouched. With a settlement record, the backend-bound request
// carries the trust and proof headers, and the relayed response gets
// paymentVerified/paymentDetails injected into its JSON data field plus
// the PAYMENT-RESPONSE receipt header.
func (r *Relay) Forward(w http.ResponseWriter, req *http.Request, resourcePath string, record *types.SettlementRecord) {
	start := time.Now()
	defer func() {
		r.rec.ObserveLatency(metrics.OpRelay, time.Since(start), map[string]string{"network": r.network.String()})
	}()

	target := r.backendURL + resourcePath
	if req.URL.RawQuery != "" {
		target += "?" + req.URL.RawQuery
	}

	outbound, err := http.NewRequestWithContext(req.Context(), req.Method, target, req.Body)
	if err != nil {
		r.writeBackendUnavailable(w, err)
		return
	}
	copyHeaders(outbound.Header, req.Header)

	if record != nil {
		outbound.Header.Set(HeaderFacilitatorVerified, "true")
		if proof, err := payment.EncodeSettlementProof(*record); err == nil {
			outbound.Header.Set(HeaderPaymentSettled, proof)
		}
	}

	resp, err := r.client.Do(outbound)
	if err != nil {
		r.writeBackendUnavailable(w, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		r.writeBackendUnavailable(w, err)
		return
	}

	if record != nil {
		body = r.annotateBody(body, record)
		r.attachReceiptHeaders(w, record)
	}

	copyHeaders(w.Header(), resp.Header)
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// annotateBody injects paymentVerified and paymentDetails into the JSON
// body's data field. Non-object bodies are relayed unmodified; the receipt
// headers still carry the proof.
func (r *Relay) annotateBody(body []byte, record *types.SettlementRecord) []byte {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return body
	}

	data, ok := parsed["data"].(map[string]any)
	if !ok {
		data = map[string]any{}
	}
	data["paymentVerified"] = true
	data["paymentDetails"] = types.PaymentDetails{
		Signature:   record.Signature,
		Payer:       record.Payer,
		ExplorerURL: r.network.ExplorerTxURL(record.Signature),
	}
	parsed["data"] = data

	annotated, err := json.Marshal(parsed)
	if err != nil {
		return body
	}
	return annotated
}

func (r *Relay) attachReceiptHeaders(w http.ResponseWriter, record *types.SettlementRecord) {
	receipt := types.PaymentReceipt{
		Success:     true,
		Payer:       record.Payer,
		Transaction: record.Signature,
		Network:     r.network.String(),
	}
	if encoded, err := payment.EncodeReceipt(receipt); err == nil {
		w.Header().Set(HeaderPaymentResponse, encoded)
	}
	if proof, err := payment.EncodeSettlementProof(*record); err == nil {
		w.Header().Set(HeaderPaymentSettled, proof)
	}
}

func (r *Relay) writeBackendUnavailable(w http.ResponseWriter, err error) {
	r.rec.IncCounter(metrics.EventBackendError, map[string]string{"network": r.network.String()})
	r.log.Error("backend relay failed", map[string]any{"error": err.Error()})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "Backend unavailable",
	})
}

func copyHeaders(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}
