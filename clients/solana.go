package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/vitwit/x402-facilitator/types"
)

const confirmPollInterval = 2 * time.Second

// SolanaLedger implements Ledger over a Solana JSON-RPC node.
type SolanaLedger struct {
	network      types.Network
	rpcURL       string
	client       *rpc.Client
	confirmLevel rpc.ConfirmationStatusType
}

var _ Ledger = (*SolanaLedger)(nil)

// NewSolanaLedger connects to the node at rpcURL. confirmLevel is
// "finalized" or "confirmed".
func NewSolanaLedger(network types.Network, rpcURL, confirmLevel string) (*SolanaLedger, error) {
	if !network.IsSolana() {
		return nil, fmt.Errorf("network %s is not a Solana network", network)
	}
	level := rpc.ConfirmationStatusFinalized
	if confirmLevel == "confirmed" {
		level = rpc.ConfirmationStatusConfirmed
	}
	return &SolanaLedger{
		network:      network,
		rpcURL:       rpcURL,
		client:       rpc.New(rpcURL),
		confirmLevel: level,
	}, nil
}

func (l *SolanaLedger) Simulate(ctx context.Context, tx *solana.Transaction) error {
	out, err := l.client.SimulateTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("simulation rpc failed: %w", err)
	}
	if out.Value != nil && out.Value.Err != nil {
		return fmt.Errorf("transaction would fail: %v (logs: %v)", out.Value.Err, out.Value.Logs)
	}
	return nil
}

func (l *SolanaLedger) Submit(ctx context.Context, rawTx []byte) (solana.Signature, error) {
	// Preflight is skipped: the flow has already simulated, and a second
	// preflight can reject a transaction the node would accept.
	sig, err := l.client.SendRawTransactionWithOpts(ctx, rawTx, rpc.TransactionOpts{
		SkipPreflight:       true,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("broadcast failed: %w", err)
	}
	return sig, nil
}

func (l *SolanaLedger) AwaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation timed out: %w", ctx.Err())
		case <-ticker.C:
		}

		out, err := l.client.GetSignatureStatuses(ctx, false, sig)
		if err != nil || len(out.Value) == 0 || out.Value[0] == nil {
			continue
		}
		status := out.Value[0]
		if status.Err != nil {
			return fmt.Errorf("transaction failed on-chain: %v", status.Err)
		}
		if confirmationReached(status.ConfirmationStatus, l.confirmLevel) {
			return nil
		}
	}
}

func (l *SolanaLedger) Balance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	out, err := l.client.GetBalance(ctx, account, rpc.CommitmentFinalized)
	if err != nil {
		return 0, fmt.Errorf("balance lookup failed: %w", err)
	}
	return out.Value, nil
}

func (l *SolanaLedger) Network() types.Network { return l.network }

func (l *SolanaLedger) Close() {}

func confirmationReached(got, want rpc.ConfirmationStatusType) bool {
	rank := map[rpc.ConfirmationStatusType]int{
		rpc.ConfirmationStatusProcessed: 1,
		rpc.ConfirmationStatusConfirmed: 2,
		rpc.ConfirmationStatusFinalized: 3,
	}
	return rank[got] >= rank[want]
}
