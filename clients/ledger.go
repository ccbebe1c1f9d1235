// Package clients provides the ledger-node access layer: a narrow Ledger
// interface the request flow depends on, and its Solana RPC implementation.
package clients

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// Ledger is the facilitator's view of a blockchain node. The interface is
// deliberately small so tests can stub it.
type Ledger interface {
	// Simulate dry-runs the transaction against current ledger state
	// without committing it. A non-nil error means the transaction would
	// fail on-chain.
	Simulate(ctx context.Context, tx *solana.Transaction) error

	// Submit broadcasts the exact raw bytes the client signed and returns
	// the ledger-assigned signature. Re-serialization is avoided on
	// purpose: the bytes on the wire must be the bytes that were signed.
	Submit(ctx context.Context, rawTx []byte) (solana.Signature, error)

	// AwaitConfirmation blocks until the signature reaches the configured
	// confirmation level, the transaction fails on-chain, or ctx expires.
	AwaitConfirmation(ctx context.Context, sig solana.Signature) error

	// Balance returns the lamport balance of an account.
	Balance(ctx context.Context, account solana.PublicKey) (uint64, error)

	Close()
}
