package client

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/latchpay/server/internal/rpcutil"
)

// confirmPollInterval is how often SendToken re-checks signature status while
// waiting for confirmation.
const confirmPollInterval = 2 * time.Second

// TransferSender executes SPL token transfers on behalf of the paying wallet.
type TransferSender interface {
	// Balance returns the wallet's token balance for the mint, in atomic
	// units. A missing token account reads as zero.
	Balance(ctx context.Context, mint solana.PublicKey) (uint64, error)

	// SendToken transfers amount atomic units of mint to the destination
	// token account and blocks until the transaction is confirmed or ctx
	// expires. It returns the transaction signature.
	SendToken(ctx context.Context, dest, mint solana.PublicKey, amount uint64, decimals uint8) (string, error)
}

// SolanaSender signs and submits TransferChecked transactions with a local
// keypair.
type SolanaSender struct {
	key        solana.PrivateKey
	rpcClient  *rpc.Client
	commitment rpc.CommitmentType
}

// SenderOption customizes a SolanaSender.
type SenderOption func(*SolanaSender)

// WithSenderCommitment sets the confirmation commitment level.
func WithSenderCommitment(commitment rpc.CommitmentType) SenderOption {
	return func(s *SolanaSender) {
		s.commitment = commitment
	}
}

// NewSolanaSender builds a sender over the given RPC endpoint.
func NewSolanaSender(key solana.PrivateKey, endpoint string, opts ...SenderOption) *SolanaSender {
	s := &SolanaSender{
		key:        key,
		rpcClient:  rpc.New(endpoint),
		commitment: rpc.CommitmentConfirmed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublicKey returns the paying wallet's address.
func (s *SolanaSender) PublicKey() solana.PublicKey {
	return s.key.PublicKey()
}

func (s *SolanaSender) Balance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(s.key.PublicKey(), mint)
	if err != nil {
		return 0, fmt.Errorf("derive token account: %w", err)
	}

	result, err := rpcutil.WithRetry(ctx, func() (*rpc.GetTokenAccountBalanceResult, error) {
		return s.rpcClient.GetTokenAccountBalance(ctx, ata, s.commitment)
	})
	if err != nil {
		// An uninitialized token account means the wallet holds none of
		// this token.
		return 0, nil
	}
	if result == nil || result.Value == nil {
		return 0, nil
	}

	amount, err := strconv.ParseUint(result.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse balance %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

func (s *SolanaSender) SendToken(ctx context.Context, dest, mint solana.PublicKey, amount uint64, decimals uint8) (string, error) {
	payer := s.key.PublicKey()
	source, _, err := solana.FindAssociatedTokenAddress(payer, mint)
	if err != nil {
		return "", fmt.Errorf("derive source token account: %w", err)
	}

	blockhash, err := rpcutil.WithRetry(ctx, func() (*rpc.GetLatestBlockhashResult, error) {
		return s.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	})
	if err != nil {
		return "", fmt.Errorf("latest blockhash: %w", err)
	}

	transfer := token.NewTransferCheckedInstruction(
		amount,
		decimals,
		source,
		mint,
		dest,
		payer,
		nil,
	).Build()

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transfer},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(payer),
	)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(payer) {
			return &s.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := s.rpcClient.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: s.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	if err := s.awaitConfirmation(ctx, sig); err != nil {
		return "", err
	}
	return sig.String(), nil
}

// awaitConfirmation polls signature status until the transaction reaches the
// sender's commitment level.
func (s *SolanaSender) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			confirmed, err := s.checkStatus(ctx, sig)
			if err != nil {
				return err
			}
			if confirmed {
				return nil
			}
		}
	}
}

func (s *SolanaSender) checkStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	result, err := s.rpcClient.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		// Transient status failures are resolved by the next poll.
		return false, nil
	}
	if result == nil || len(result.Value) == 0 || result.Value[0] == nil {
		return false, nil
	}

	status := result.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("transaction %s failed on-chain: %v", sig, status.Err)
	}

	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return true, nil
	case rpc.ConfirmationStatusConfirmed:
		return s.commitment != rpc.CommitmentFinalized, nil
	case rpc.ConfirmationStatusProcessed:
		return s.commitment == rpc.CommitmentProcessed, nil
	default:
		return false, nil
	}
}
