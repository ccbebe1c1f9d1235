// Package settlement submits verified payment transactions to the ledger
// and waits for them to reach the configured confirmation level.
package settlement

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/x402-facilitator/clients"
	"github.com/vitwit/x402-facilitator/logger"
	"github.com/vitwit/x402-facilitator/metrics"
	"github.com/vitwit/x402-facilitator/types"
)

// Engine settles payments against a single ledger. Settlement is never
// retried: resubmitting a payment transaction without the client risks
// double payment.
type Engine struct {
	ledger  clients.Ledger
	network types.Network
	timeout time.Duration
	log     logger.Logger
	rec     metrics.Recorder
}

func NewEngine(ledger clients.Ledger, network types.Network, timeout time.Duration, log logger.Logger, rec metrics.Recorder) *Engine {
	if log == nil {
		log = logger.NoopLogger{}
	}
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	return &Engine{
		ledger:  ledger,
		network: network,
		timeout: timeout,
		log:     log,
		rec:     rec,
	}
}

// Simulate dry-runs the transaction. A failure here must never reach
// Settle: submitting a transaction known to fail wastes round trips and
// leaves the client guessing why payment did not go through.
func (e *Engine) Simulate(ctx context.Context, tx *solana.Transaction) *types.FacilitatorError {
	simCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	err := e.ledger.Simulate(simCtx, tx)
	e.rec.ObserveLatency(metrics.OpSimulate, time.Since(start), e.labels())
	if err != nil {
		return types.NewError(types.ErrSimulationFailed, "%v", err)
	}
	return nil
}

// Settle broadcasts the exact raw bytes the client signed and blocks until
// confirmation. The two failure modes stay distinct: submission_rejected
// means the node refused the bytes, confirmation_failed means the
// transaction was accepted but did not confirm cleanly in time.
//
// The caller passes a context that survives client disconnects; an
// in-flight submission is never cancelled, since abandoning it would leave
// the transaction in an unknown state.
func (e *Engine) Settle(ctx context.Context, rawTx []byte) *types.SettlementResult {
	settleCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		e.rec.ObserveLatency(metrics.OpSettle, time.Since(start), e.labels())
	}()

	sig, err := e.ledger.Submit(settleCtx, rawTx)
	if err != nil {
		e.log.Warn("transaction submission rejected", map[string]any{
			"network": e.network.String(),
			"error":   err.Error(),
		})
		return &types.SettlementResult{
			Success:     false,
			Network:     e.network.String(),
			FailureCode: types.ErrSubmissionRejected,
			Error:       err.Error(),
		}
	}

	if err := e.ledger.AwaitConfirmation(settleCtx, sig); err != nil {
		e.log.Warn("transaction confirmation failed", map[string]any{
			"network":   e.network.String(),
			"signature": sig.String(),
			"error":     err.Error(),
		})
		return &types.SettlementResult{
			Success:     false,
			Signature:   sig.String(),
			Network:     e.network.String(),
			FailureCode: types.ErrConfirmationFailed,
			Error:       err.Error(),
		}
	}

	e.rec.IncCounter(metrics.EventPaymentSettled, e.labels())
	e.log.Info("payment settled", map[string]any{
		"network":   e.network.String(),
		"signature": sig.String(),
	})
	return &types.SettlementResult{
		Success:   true,
		Signature: sig.String(),
		Network:   e.network.String(),
	}
}

func (e *Engine) labels() map[string]string {
	return map[string]string{"network": e.network.String()}
}
