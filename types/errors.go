package types

// Wire failure codes. Every non-2xx payment outcome maps to exactly one of
// these; ledger-stage codes carry the node's detail string after a colon,
// e.g. "simulation_failed: insufficient funds for rent".
const (
	// -----------------------------
	// PAYLOAD DECODING
	// -----------------------------
	ErrMalformedPayload   = "malformed_payload"
	ErrUnsupportedVersion = "unsupported_version"
	ErrUnsupportedScheme  = "unsupported_scheme"
	ErrInvalidNetwork     = "invalid_network"
	ErrMissingTransaction = "missing_transaction"

	// -----------------------------
	// TRANSACTION VERIFICATION
	// -----------------------------
	ErrInvalidTransaction         = "invalid_transaction"
	ErrAmountInsufficient         = "amount_insufficient"
	ErrNoValidTransferToRecipient = "no_valid_transfer_to_recipient"
	ErrSignatureAlreadyUsed       = "signature_already_used"

	// -----------------------------
	// LEDGER
	// -----------------------------
	ErrSimulationFailed   = "simulation_failed"
	ErrSubmissionRejected = "submission_rejected"
	ErrConfirmationFailed = "confirmation_failed"

	// -----------------------------
	// UPSTREAM
	// -----------------------------
	ErrBackendUnavailable = "backend_unavailable"
)
