package x402

import (
	"fmt"

	"github.com/latchpay/server/internal/errors"
)

// VerificationError classifies failures encountered while checking a
// payment proof.
type VerificationError struct {
	Code    errors.ErrorCode // machine-readable, goes on the wire
	Message string           // user-facing message
	Err     error            // underlying error for logging
}

func (e VerificationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e VerificationError) Unwrap() error {
	return e.Err
}

// NewVerificationError builds a VerificationError with the canonical
// user-facing message for the code.
func NewVerificationError(code errors.ErrorCode, err error) VerificationError {
	return VerificationError{
		Code:    code,
		Message: userMessage(code),
		Err:     err,
	}
}

func userMessage(code errors.ErrorCode) string {
	switch code {
	case errors.ErrCodeInvalidHeader:
		return "Invalid X-PAYMENT header. Check the payment payload format and try again."
	case errors.ErrCodeTxNotFound:
		return "Transaction not found on the blockchain. It may still be propagating; try again shortly."
	case errors.ErrCodeTxFailed:
		return "Transaction failed on the blockchain. Submit a new payment."
	case errors.ErrCodeNoTokenTransfer:
		return "No USDC transfer found in the transaction."
	case errors.ErrCodeTransferMismatch:
		return "Payment does not match the required recipient or amount."
	case errors.ErrCodeTxExpired:
		return "Payment transaction is too old. Submit a fresh payment."
	case errors.ErrCodeReplayAttack:
		return "This payment has already been used. Each payment is valid for a single request."
	case errors.ErrCodeRPCError:
		return "Blockchain RPC is temporarily unavailable. Please retry."
	case errors.ErrCodeUnsupportedRequirements:
		return "None of the offered payment options are supported by this client."
	case errors.ErrCodeInsufficientBalance:
		return "Insufficient token balance to satisfy the payment requirement."
	case errors.ErrCodePaymentTimeout:
		return "Payment did not confirm within the challenge timeout."
	default:
		return fmt.Sprintf("Payment verification failed: %s", code)
	}
}
