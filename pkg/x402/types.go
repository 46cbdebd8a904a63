package x402

import "time"

// PayTo identifies where a payment must land: the receiving token account
// and the mint it holds. The address is the recipient's associated token
// account, not the owning wallet.
type PayTo struct {
	Address string `json:"address"`
	Asset   string `json:"asset"` // token mint address
}

// PaymentRequirements is one entry in a 402 challenge's accepts list. It
// tells the client exactly what to pay, where, and how long the quote holds.
type PaymentRequirements struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	MaxAmountRequired string `json:"maxAmountRequired"` // token micro-units, decimal string
	Resource          string `json:"resource"`
	Description       string `json:"description,omitempty"`
	MimeType          string `json:"mimeType,omitempty"`
	PayTo             PayTo  `json:"payTo"`
	TimeoutSeconds    int    `json:"timeout"` // max age of a satisfying transfer, seconds

	Extra map[string]string `json:"extra,omitempty"`
}

// PaymentRequired is the JSON body of a 402 response.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Accepts     []PaymentRequirements `json:"accepts"`
	Error       string                `json:"error,omitempty"`
}

// HeaderPayload is the scheme-specific payload inside an X-PAYMENT header
// for the "exact" scheme on Solana: a reference to an already-submitted
// transaction.
type HeaderPayload struct {
	Signature string `json:"signature"`
}

// PaymentProof is the decoded X-PAYMENT header.
type PaymentProof struct {
	X402Version int           `json:"x402Version"`
	Scheme      string        `json:"scheme"`
	Network     string        `json:"network"`
	Payload     HeaderPayload `json:"payload"`
}

// Verification is the successful outcome of checking a payment proof
// against a challenge.
type Verification struct {
	Payer       string    `json:"payer"`
	AmountMicro int64     `json:"amountMicro"`
	AmountUSD   float64   `json:"amountUsd"`
	Signature   string    `json:"signature"`
	Slot        uint64    `json:"slot"`
	BlockTime   time.Time `json:"blockTime"`
	Resource    string    `json:"resource,omitempty"`
}
