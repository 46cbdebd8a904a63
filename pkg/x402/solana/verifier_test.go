package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/latchpay/server/internal/cache"
	"github.com/latchpay/server/internal/errors"
	"github.com/latchpay/server/pkg/x402"
)

type fakeLedger struct {
	result *rpc.GetTransactionResult
	err    error
	calls  int
}

func (f *fakeLedger) GetTransaction(_ context.Context, _ solana.Signature) (*rpc.GetTransactionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var usdcDevnet = solana.MustPublicKeyFromBase58(x402.USDCMintDevnet)

// paymentMessage builds a message transferring amount USDC micro-units from
// testSource to dest via TransferChecked.
func paymentMessage(dest solana.PublicKey, amount uint64) solana.Message {
	return solana.Message{
		Header: solana.MessageHeader{
			NumRequiredSignatures:       1,
			NumReadonlyUnsignedAccounts: 2,
		},
		AccountKeys: []solana.PublicKey{
			testPayer,
			testSource,
			dest,
			usdcDevnet,
			solana.TokenProgramID,
		},
		RecentBlockhash: solana.Hash(testKey(0x0a)),
		Instructions: []solana.CompiledInstruction{{
			ProgramIDIndex: 4,
			Accounts:       []uint16{1, 3, 2, 0},
			Data:           transferCheckedData(amount, 6),
		}},
	}
}

func envelope(t *testing.T, msg solana.Message) *rpc.TransactionResultEnvelope {
	t.Helper()
	tx := solana.Transaction{
		Signatures: []solana.Signature{{}},
		Message:    msg,
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal transaction: %v", err)
	}
	payload := fmt.Sprintf("[%q,%q]", base64.StdEncoding.EncodeToString(raw), "base64")
	var env rpc.TransactionResultEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return &env
}

func ledgerResult(t *testing.T, msg solana.Message, blockTime time.Time, txErr interface{}) *rpc.GetTransactionResult {
	t.Helper()
	bt := solana.UnixTimeSeconds(blockTime.Unix())
	return &rpc.GetTransactionResult{
		Slot:        4242,
		BlockTime:   &bt,
		Transaction: envelope(t, msg),
		Meta: &rpc.TransactionMeta{
			Err: txErr,
		},
	}
}

func newTestVerifier(t *testing.T, ledger LedgerClient) (*Verifier, *cache.MemoryStore) {
	t.Helper()
	store := cache.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	v, err := NewVerifier(ledger, store, x402.NetworkDevnet)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v, store
}

func testSignature() string {
	var raw [64]byte
	for i := range raw {
		raw[i] = 0x11
	}
	return solana.SignatureFromBytes(raw[:]).String()
}

func errCode(t *testing.T, err error) errors.ErrorCode {
	t.Helper()
	var verr x402.VerificationError
	if !stderrors.As(err, &verr) {
		t.Fatalf("expected VerificationError, got %T: %v", err, err)
	}
	return verr.Code
}

func TestVerifyPaymentSuccessThenReplay(t *testing.T) {
	ledger := &fakeLedger{
		result: ledgerResult(t, paymentMessage(testDest, 290_000), time.Now(), nil),
	}
	v, _ := newTestVerifier(t, ledger)
	sig := testSignature()

	got, err := v.VerifyPayment(context.Background(), sig, testDest, 290_000)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if got.AmountMicro != 290_000 {
		t.Errorf("AmountMicro = %d, want 290000", got.AmountMicro)
	}
	if got.Payer != testPayer.String() {
		t.Errorf("Payer = %s, want %s", got.Payer, testPayer)
	}
	if got.Slot != 4242 {
		t.Errorf("Slot = %d, want 4242", got.Slot)
	}

	// Same signature again: consumed.
	_, err = v.VerifyPayment(context.Background(), sig, testDest, 290_000)
	if code := errCode(t, err); code != errors.ErrCodeReplayAttack {
		t.Errorf("second verification code = %s, want REPLAY_ATTACK", code)
	}
	if ledger.calls != 1 {
		t.Errorf("ledger called %d times, want 1 (replay served from cache)", ledger.calls)
	}
}

func TestVerifyPaymentOverpayment(t *testing.T) {
	ledger := &fakeLedger{
		result: ledgerResult(t, paymentMessage(testDest, 500_000), time.Now(), nil),
	}
	v, _ := newTestVerifier(t, ledger)

	got, err := v.VerifyPayment(context.Background(), testSignature(), testDest, 290_000)
	if err != nil {
		t.Fatalf("VerifyPayment: %v", err)
	}
	if got.AmountMicro != 500_000 {
		t.Errorf("AmountMicro = %d, want actual transferred 500000", got.AmountMicro)
	}
}

func TestVerifyPaymentNotFoundCached(t *testing.T) {
	ledger := &fakeLedger{err: ErrNotFound}
	v, _ := newTestVerifier(t, ledger)
	sig := testSignature()

	_, err := v.VerifyPayment(context.Background(), sig, testDest, 1)
	if code := errCode(t, err); code != errors.ErrCodeTxNotFound {
		t.Fatalf("code = %s, want TX_NOT_FOUND", code)
	}

	// Second probe within the short TTL is served from cache.
	_, err = v.VerifyPayment(context.Background(), sig, testDest, 1)
	if code := errCode(t, err); code != errors.ErrCodeTxNotFound {
		t.Fatalf("code = %s, want TX_NOT_FOUND", code)
	}
	if ledger.calls != 1 {
		t.Errorf("ledger called %d times, want 1", ledger.calls)
	}
}

func TestVerifyPaymentRPCErrorNotCached(t *testing.T) {
	ledger := &fakeLedger{err: stderrors.New("connection refused by node")}
	v, _ := newTestVerifier(t, ledger)
	sig := testSignature()

	_, err := v.VerifyPayment(context.Background(), sig, testDest, 1)
	if code := errCode(t, err); code != errors.ErrCodeRPCError {
		t.Fatalf("code = %s, want RPC_ERROR", code)
	}

	// Transient failures must not poison the cache.
	_, _ = v.VerifyPayment(context.Background(), sig, testDest, 1)
	if ledger.calls != 2 {
		t.Errorf("ledger called %d times, want 2", ledger.calls)
	}
}

func TestVerifyPaymentTxFailed(t *testing.T) {
	ledger := &fakeLedger{
		result: ledgerResult(t, paymentMessage(testDest, 290_000), time.Now(),
			map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}),
	}
	v, _ := newTestVerifier(t, ledger)
	sig := testSignature()

	_, err := v.VerifyPayment(context.Background(), sig, testDest, 290_000)
	if code := errCode(t, err); code != errors.ErrCodeTxFailed {
		t.Fatalf("code = %s, want TX_FAILED", code)
	}

	// Deterministic: cached, ledger not consulted again.
	_, _ = v.VerifyPayment(context.Background(), sig, testDest, 290_000)
	if ledger.calls != 1 {
		t.Errorf("ledger called %d times, want 1", ledger.calls)
	}
}

func TestVerifyPaymentExpired(t *testing.T) {
	ledger := &fakeLedger{
		result: ledgerResult(t, paymentMessage(testDest, 290_000), time.Now().Add(-10*time.Minute), nil),
	}
	v, _ := newTestVerifier(t, ledger)

	_, err := v.VerifyPayment(context.Background(), testSignature(), testDest, 290_000)
	if code := errCode(t, err); code != errors.ErrCodeTxExpired {
		t.Errorf("code = %s, want TX_EXPIRED", code)
	}
}

func TestVerifyPaymentFreshnessWindow(t *testing.T) {
	ledger := &fakeLedger{
		result: ledgerResult(t, paymentMessage(testDest, 290_000), time.Now().Add(-8*time.Minute), nil),
	}
	store := cache.NewMemoryStore()
	defer store.Close()
	v, err := NewVerifier(ledger, store, x402.NetworkDevnet, WithMaxPaymentAge(10*time.Minute))
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	if _, err := v.VerifyPayment(context.Background(), testSignature(), testDest, 290_000); err != nil {
		t.Errorf("transaction inside widened window rejected: %v", err)
	}
}

func TestVerifyPaymentNoTokenTransfer(t *testing.T) {
	msg := paymentMessage(testDest, 290_000)
	// Point the instruction's mint account at something other than USDC.
	msg.AccountKeys[3] = testKey(0x0b)

	ledger := &fakeLedger{result: ledgerResult(t, msg, time.Now(), nil)}
	v, _ := newTestVerifier(t, ledger)
	sig := testSignature()

	_, err := v.VerifyPayment(context.Background(), sig, testDest, 290_000)
	if code := errCode(t, err); code != errors.ErrCodeNoTokenTransfer {
		t.Fatalf("code = %s, want NO_USDC_TRANSFER", code)
	}

	_, _ = v.VerifyPayment(context.Background(), sig, testDest, 290_000)
	if ledger.calls != 1 {
		t.Errorf("ledger called %d times, want 1 (deterministic verdict cached)", ledger.calls)
	}
}

func TestVerifyPaymentTransferMismatch(t *testing.T) {
	tests := []struct {
		name     string
		msg      solana.Message
		required int64
	}{
		{
			name:     "underpayment",
			msg:      paymentMessage(testDest, 100_000),
			required: 290_000,
		},
		{
			name:     "wrong recipient",
			msg:      paymentMessage(testKey(0x0c), 290_000),
			required: 290_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &fakeLedger{result: ledgerResult(t, tt.msg, time.Now(), nil)}
			v, _ := newTestVerifier(t, ledger)
			sig := testSignature()

			_, err := v.VerifyPayment(context.Background(), sig, testDest, tt.required)
			if code := errCode(t, err); code != errors.ErrCodeTransferMismatch {
				t.Fatalf("code = %s, want TRANSFER_MISMATCH", code)
			}

			// Request-dependent: a later challenge with a lower price could
			// match, so the verdict must not be cached.
			_, _ = v.VerifyPayment(context.Background(), sig, testDest, tt.required)
			if ledger.calls != 2 {
				t.Errorf("ledger called %d times, want 2", ledger.calls)
			}
		})
	}
}

func TestVerifyPaymentInvalidSignature(t *testing.T) {
	v, _ := newTestVerifier(t, &fakeLedger{err: ErrNotFound})

	_, err := v.VerifyPayment(context.Background(), "not-base58-!!!", testDest, 1)
	if code := errCode(t, err); code != errors.ErrCodeInvalidHeader {
		t.Errorf("code = %s, want INVALID_HEADER", code)
	}
}

func TestVerifyPaymentRequiresPositiveAmount(t *testing.T) {
	v, _ := newTestVerifier(t, &fakeLedger{err: ErrNotFound})

	_, err := v.VerifyPayment(context.Background(), testSignature(), testDest, 0)
	if code := errCode(t, err); code != errors.ErrCodeVerificationError {
		t.Errorf("code = %s, want VERIFICATION_ERROR", code)
	}
}
