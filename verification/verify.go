// Package verification inspects a client-signed Solana transaction and
// checks that it carries a qualifying native transfer to the facilitator's
// recipient. Verification is deterministic over the transaction bytes and
// performs no network calls.
package verification

import (
	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/shopspring/decimal"

	"github.com/vitwit/x402-facilitator/types"
)

// ParseTransaction deserializes raw transaction bytes into a structurally
// valid, signed transaction.
func ParseTransaction(raw []byte) (*solana.Transaction, *types.FacilitatorError) {
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(raw))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidTransaction, "failed to decode transaction: %v", err)
	}
	if len(tx.Signatures) == 0 || len(tx.Message.AccountKeys) == 0 {
		return nil, types.NewError(types.ErrInvalidTransaction, "transaction is not signed")
	}
	return tx, nil
}

// VerifyTransfer scans the transaction's instruction list for a system
// program transfer to recipient of at least requiredLamports.
//
// The first transfer targeting the recipient decides the outcome: a
// sufficient amount verifies the transaction, an insufficient one fails it
// with amount_insufficient even if a later, larger transfer to the same
// recipient exists. Overpayment is accepted.
//
// The payer identity is the transaction's fee payer (first signer), not the
// transfer's funding account. The signature set already proves control of
// the fee payer key, and by protocol convention the two are the same.
func VerifyTransfer(tx *solana.Transaction, recipient solana.PublicKey, requiredLamports uint64) types.VerificationResult {
	payer := tx.Message.AccountKeys[0].String()
	required := decimal.NewFromInt(int64(requiredLamports))

	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			return types.VerificationResult{
				Valid:       false,
				FailureCode: types.ErrInvalidTransaction,
			}
		}
		prog := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if !prog.Equals(solana.SystemProgramID) {
			continue
		}

		accountMetas := make([]*solana.AccountMeta, len(inst.Accounts))
		for i, accIdx := range inst.Accounts {
			if int(accIdx) >= len(tx.Message.AccountKeys) {
				return types.VerificationResult{
					Valid:       false,
					FailureCode: types.ErrInvalidTransaction,
				}
			}
			pub := tx.Message.AccountKeys[accIdx]
			writable, err := tx.Message.IsWritable(pub)
			if err != nil {
				return types.VerificationResult{
					Valid:       false,
					FailureCode: types.ErrInvalidTransaction,
				}
			}
			accountMetas[i] = &solana.AccountMeta{
				PublicKey:  pub,
				IsSigner:   tx.Message.IsSigner(pub),
				IsWritable: writable,
			}
		}

		sysInst, err := system.DecodeInstruction(accountMetas, inst.Data)
		if err != nil {
			// Non-transfer system instructions (account creation etc.)
			// are allowed alongside the payment.
			continue
		}
		transfer, ok := sysInst.Impl.(*system.Transfer)
		if !ok || transfer.Lamports == nil || len(accountMetas) < 2 {
			continue
		}

		to := accountMetas[1].PublicKey
		if !to.Equals(recipient) {
			continue
		}

		amount := decimal.NewFromInt(int64(*transfer.Lamports))
		if amount.LessThan(required) {
			return types.VerificationResult{
				Valid:       false,
				FailureCode: types.ErrAmountInsufficient,
				Payer:       payer,
				Amount:      *transfer.Lamports,
			}
		}
		return types.VerificationResult{
			Valid:  true,
			Payer:  payer,
			Amount: *transfer.Lamports,
		}
	}

	return types.VerificationResult{
		Valid:       false,
		FailureCode: types.ErrNoValidTransferToRecipient,
		Payer:       payer,
	}
}
