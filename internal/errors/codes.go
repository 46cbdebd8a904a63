package errors

// ErrorCode is a machine-readable identifier carried on the wire in 402
// responses and webhook payloads, so clients can branch on it.
type ErrorCode string

// Payment verification errors.
const (
	// The X-PAYMENT header was missing a field, malformed, or referenced an
	// unsupported scheme or network.
	ErrCodeInvalidHeader ErrorCode = "INVALID_HEADER"

	// The referenced transaction does not exist on the ledger at the
	// configured confirmation level (it may still be propagating).
	ErrCodeTxNotFound ErrorCode = "TX_NOT_FOUND"

	// The transaction exists but failed on-chain.
	ErrCodeTxFailed ErrorCode = "TX_FAILED"

	// The transaction contains no transfer of the configured token.
	ErrCodeNoTokenTransfer ErrorCode = "NO_USDC_TRANSFER"

	// A token transfer exists but the recipient or amount does not satisfy
	// the challenge.
	ErrCodeTransferMismatch ErrorCode = "TRANSFER_MISMATCH"

	// The transaction is older than the configured freshness window.
	ErrCodeTxExpired ErrorCode = "TX_EXPIRED"

	// The signature has already been used to pay for a request.
	ErrCodeReplayAttack ErrorCode = "REPLAY_ATTACK"

	// Anything unclassified on the server side; safe to retry.
	ErrCodeVerificationError ErrorCode = "VERIFICATION_ERROR"

	// Ledger RPC failure; safe to retry.
	ErrCodeRPCError ErrorCode = "RPC_ERROR"
)

// Client agent errors.
const (
	// No entry in the challenge's accepts list is payable by this client.
	ErrCodeUnsupportedRequirements ErrorCode = "UNSUPPORTED_PAYMENT_REQUIREMENTS"

	// The payer wallet holds less than the required token amount.
	ErrCodeInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"

	// The transfer did not confirm within the challenge timeout.
	ErrCodePaymentTimeout ErrorCode = "PAYMENT_TIMEOUT"
)

// IsRetryable reports whether the failure is transient: the same request may
// succeed if repeated without any change on the client's side.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeRPCError, ErrCodeVerificationError:
		return true
	default:
		return false
	}
}

// IsDeterministic reports whether the verdict depends only on the
// transaction itself, making a cached error safe to replay to later callers.
// TRANSFER_MISMATCH and TX_EXPIRED are excluded: they depend on the
// challenge the signature was checked against and on the clock.
func (e ErrorCode) IsDeterministic() bool {
	switch e {
	case ErrCodeTxFailed, ErrCodeNoTokenTransfer, ErrCodeTxNotFound:
		return true
	default:
		return false
	}
}

// HTTPStatus maps the code to the status the challenge handler emits:
// 402 when the client can correct the problem with a fresh or fixed payment,
// 500 when the fault is on the server side.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeInvalidHeader,
		ErrCodeTxNotFound,
		ErrCodeTxFailed,
		ErrCodeNoTokenTransfer,
		ErrCodeTransferMismatch,
		ErrCodeTxExpired,
		ErrCodeReplayAttack:
		return 402
	default:
		return 500
	}
}
