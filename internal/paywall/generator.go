// Package paywall turns route configuration into x402 payment challenges and
// enforces them as HTTP middleware.
package paywall

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/latchpay/server/internal/money"
	"github.com/latchpay/server/pkg/x402"
)

// Generator builds x402 payment requirements for protected resources. Payments
// land in the recipient wallet's associated token account for the configured
// mint, derived once at construction.
type Generator struct {
	recipientWallet solana.PublicKey
	recipientATA    solana.PublicKey
	network         string
	mint            solana.PublicKey
	timeoutSeconds  int
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithTimeout overrides how long generated challenges stay payable.
func WithTimeout(seconds int) GeneratorOption {
	return func(g *Generator) {
		if seconds > 0 {
			g.timeoutSeconds = seconds
		}
	}
}

// NewGenerator derives the recipient's token account for the network's USDC
// mint and returns a challenge generator for it.
func NewGenerator(recipientWallet, network string, opts ...GeneratorOption) (*Generator, error) {
	wallet, err := solana.PublicKeyFromBase58(recipientWallet)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient wallet %q: %w", recipientWallet, err)
	}

	mintAddr, err := x402.MintForNetwork(network)
	if err != nil {
		return nil, err
	}
	mint := solana.MustPublicKeyFromBase58(mintAddr)

	ata, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return nil, fmt.Errorf("derive recipient token account: %w", err)
	}

	g := &Generator{
		recipientWallet: wallet,
		recipientATA:    ata,
		network:         network,
		mint:            mint,
		timeoutSeconds:  int(x402.DefaultTimeout.Seconds()),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RecipientTokenAccount returns the derived associated token account payments
// must land in.
func (g *Generator) RecipientTokenAccount() solana.PublicKey {
	return g.recipientATA
}

// Network returns the x402 network the generator quotes for.
func (g *Generator) Network() string {
	return g.network
}

// Resource describes one priced route.
type Resource struct {
	Path        string
	PriceUSD    float64
	Description string
	MimeType    string
}

// Generate builds the payment requirements for a single priced resource.
func (g *Generator) Generate(res Resource) (x402.PaymentRequirements, error) {
	micro, err := money.UsdToMicro(res.PriceUSD)
	if err != nil {
		return x402.PaymentRequirements{}, fmt.Errorf("price for %q: %w", res.Path, err)
	}
	if micro <= 0 {
		return x402.PaymentRequirements{}, fmt.Errorf("price for %q must be positive", res.Path)
	}

	mimeType := res.MimeType
	if mimeType == "" {
		mimeType = "application/json"
	}

	return x402.PaymentRequirements{
		Scheme:            x402.SchemeExact,
		Network:           g.network,
		MaxAmountRequired: strconv.FormatInt(micro, 10),
		Resource:          res.Path,
		Description:       res.Description,
		MimeType:          mimeType,
		PayTo: x402.PayTo{
			Address: g.recipientATA.String(),
			Asset:   g.mint.String(),
		},
		TimeoutSeconds: g.timeoutSeconds,
		Extra: map[string]string{
			"decimals":        strconv.Itoa(x402.USDCDecimals),
			"tokenSymbol":     "USDC",
			"recipientWallet": g.recipientWallet.String(),
		},
	}, nil
}

// Challenge builds the full 402 body for a resource, with an optional error
// message explaining why the previous attempt was refused.
func (g *Generator) Challenge(res Resource, errMessage string) (x402.PaymentRequired, error) {
	req, err := g.Generate(res)
	if err != nil {
		return x402.PaymentRequired{}, err
	}
	return x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Accepts:     []x402.PaymentRequirements{req},
		Error:       errMessage,
	}, nil
}

// GenerateMultiple builds requirements for a set of resources, failing on the
// first invalid price.
func (g *Generator) GenerateMultiple(resources []Resource) ([]x402.PaymentRequirements, error) {
	if len(resources) == 0 {
		return nil, fmt.Errorf("no resources to quote")
	}
	out := make([]x402.PaymentRequirements, 0, len(resources))
	for _, res := range resources {
		req, err := g.Generate(res)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
