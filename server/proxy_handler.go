package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/payment"
	"github.com/vitwit/x402-facilitator/pricing"
	"github.com/vitwit/x402-facilitator/types"
	"github.com/vitwit/x402-facilitator/verification"
)

// handleProxy runs the per-request payment state machine. Every path
// through it terminates in exactly one HTTP response; no state is
// revisited. Simulation strictly precedes settlement, and settlement
// strictly precedes receipt recording and the relay.
func (s *Server) handleProxy(c *gin.Context) {
	resource := c.Param("resource")

	rule := s.prices.Match(resource)
	if rule == nil {
		s.relay.Forward(c.Writer, c.Request, resource, nil)
		return
	}

	header := c.GetHeader(PaymentHeader)
	if header == "" {
		s.writeChallenge(c, rule, resource)
		return
	}

	payload, ferr := payment.DecodeHeader(header, s.cfg.Network)
	if ferr != nil {
		s.writePaymentFailure(c, resource, ferr.Code, ferr.Message)
		return
	}

	rawTx, ferr := payment.TransactionBytes(payload)
	if ferr != nil {
		s.writePaymentFailure(c, resource, ferr.Code, ferr.Message)
		return
	}

	tx, ferr := verification.ParseTransaction(rawTx)
	if ferr != nil {
		s.writePaymentFailure(c, resource, ferr.Code, ferr.Message)
		return
	}

	result := verification.VerifyTransfer(tx, s.payTo, rule.PriceUnits)
	if !result.Valid {
		s.writePaymentFailure(c, resource, result.FailureCode, "")
		return
	}

	// Replay gate: a signature with a live receipt was already settled
	// within the TTL window. The ledger's duplicate-transaction rejection
	// remains the backstop once the receipt expires.
	clientSig := tx.Signatures[0].String()
	if s.store.IsUsed(clientSig) {
		s.writePaymentFailure(c, resource, types.ErrSignatureAlreadyUsed, "")
		return
	}

	s.rec.IncCounter(metrics.EventPaymentVerified, s.labels())
	s.log.Info("payment verified", map[string]any{
		"path":   resource,
		"payer":  result.Payer,
		"amount": result.Amount,
	})

	if ferr := s.settler.Simulate(c.Request.Context(), tx); ferr != nil {
		s.writePaymentFailure(c, resource, types.ErrSimulationFailed, ferr.Message)
		return
	}

	// Settlement survives a client disconnect: once issued, an in-flight
	// submission runs to completion so the transaction never ends up in
	// an unknown state. The response is simply undeliverable.
	settled := s.settler.Settle(context.WithoutCancel(c.Request.Context()), rawTx)
	if !settled.Success {
		s.writePaymentFailure(c, resource, settled.FailureCode, settled.Error)
		return
	}

	record := s.store.Store(settled.Signature, result.Payer, result.Amount, resource)
	s.relay.Forward(c.Writer, c.Request, resource, &record)
}

func (s *Server) writeChallenge(c *gin.Context, rule *pricing.Rule, resource string) {
	body := s.challenge.Challenge(rule, s.resourceURL(c, "/proxy"+resource))
	if encoded, err := payment.EncodeChallenge(body); err == nil {
		c.Header(ChallengeHeader, encoded)
	}

	s.rec.IncCounter(metrics.EventChallengeIssued, s.labels())
	s.log.Info("payment required", map[string]any{
		"path":  resource,
		"price": rule.PriceUnits,
	})
	c.JSON(http.StatusPaymentRequired, body)
}

// writePaymentFailure terminates the request with a 402 carrying the
// failure code, with the ledger's detail appended for ledger-stage codes.
func (s *Server) writePaymentFailure(c *gin.Context, resource, code, detail string) {
	message := code
	if detail != "" {
		message = code + ": " + detail
	}

	event := metrics.EventPaymentFailed
	switch code {
	case types.ErrMalformedPayload, types.ErrUnsupportedVersion, types.ErrUnsupportedScheme,
		types.ErrInvalidNetwork, types.ErrMissingTransaction:
		event = metrics.EventPayloadRejected
	}
	s.rec.IncCounter(event, s.labels())
	s.log.Warn("payment rejected", map[string]any{
		"path":   resource,
		"reason": message,
	})
	c.JSON(http.StatusPaymentRequired, types.X402Response{
		X402Version: types.X402Version,
		Error:       message,
	})
}

func (s *Server) resourceURL(c *gin.Context, path string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + path
}

func (s *Server) labels() map[string]string {
	return map[string]string{"network": s.cfg.Network.String()}
}

func contextWithTimeout(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}
