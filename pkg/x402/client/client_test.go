package client

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/latchpay/server/internal/errors"
	"github.com/latchpay/server/pkg/x402"
)

type fakeSender struct {
	balance   uint64
	signature string
	err       error
	blockCtx  bool

	sends    int
	gotDest  solana.PublicKey
	gotMint  solana.PublicKey
	gotValue uint64
}

func (f *fakeSender) Balance(_ context.Context, _ solana.PublicKey) (uint64, error) {
	return f.balance, nil
}

func (f *fakeSender) SendToken(ctx context.Context, dest, mint solana.PublicKey, amount uint64, _ uint8) (string, error) {
	f.sends++
	f.gotDest = dest
	f.gotMint = mint
	f.gotValue = amount
	if f.blockCtx {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.signature, f.err
}

func paidSignature() string {
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = 0x22
	}
	return solana.SignatureFromBytes(raw).String()
}

const payToAccount = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func challengeBody(t *testing.T, network string, timeoutSeconds int) []byte {
	t.Helper()
	body, err := x402.EncodeRequired(x402.PaymentRequired{
		X402Version: x402.ProtocolVersion,
		Accepts: []x402.PaymentRequirements{{
			Scheme:            x402.SchemeExact,
			Network:           network,
			MaxAmountRequired: "290000",
			Resource:          "/api/report",
			PayTo: x402.PayTo{
				Address: payToAccount,
				Asset:   x402.USDCMintDevnet,
			},
			TimeoutSeconds: timeoutSeconds,
			Extra:             map[string]string{"decimals": "6"},
		}},
	})
	if err != nil {
		t.Fatalf("EncodeRequired: %v", err)
	}
	return body
}

// paywalledServer returns 402 until a request carries the expected signature.
func paywalledServer(t *testing.T, requests *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*requests++
		header := r.Header.Get(x402.PaymentHeader)
		if header == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(challengeBody(t, x402.NetworkDevnet, 60))
			return
		}
		proof, err := x402.DecodeProof(header)
		if err != nil || proof.Payload.Signature != paidSignature() {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		io.WriteString(w, "premium content")
	}))
}

func TestFetchPaysChallengeOnce(t *testing.T) {
	var requests int
	server := paywalledServer(t, &requests)
	defer server.Close()

	sender := &fakeSender{balance: 1_000_000, signature: paidSignature()}
	c := New(sender, x402.NetworkDevnet)

	resp, err := c.Fetch(context.Background(), server.URL+"/api/report")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "premium content" {
		t.Errorf("body = %q", body)
	}
	if requests != 2 {
		t.Errorf("server saw %d requests, want 2", requests)
	}
	if sender.sends != 1 {
		t.Errorf("payment sent %d times, want 1", sender.sends)
	}
	if sender.gotValue != 290_000 {
		t.Errorf("paid %d, want 290000", sender.gotValue)
	}
	if sender.gotDest.String() != payToAccount {
		t.Errorf("paid to %s", sender.gotDest)
	}
	if sender.gotMint.String() != x402.USDCMintDevnet {
		t.Errorf("paid mint %s", sender.gotMint)
	}
}

func TestDoPassesThroughNon402(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "free content")
	}))
	defer server.Close()

	sender := &fakeSender{balance: 1_000_000}
	c := New(sender, x402.NetworkDevnet)

	resp, err := c.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if sender.sends != 0 {
		t.Errorf("payment sent for a free resource")
	}
}

func TestDoPreservesRequestBodyOnRetry(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		if r.Header.Get(x402.PaymentHeader) == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			w.Write(challengeBody(t, x402.NetworkDevnet, 60))
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sender := &fakeSender{balance: 1_000_000, signature: paidSignature()}
	c := New(sender, x402.NetworkDevnet)

	req, _ := http.NewRequest(http.MethodPost, server.URL, strings.NewReader(`{"query":"q"}`))
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if len(bodies) != 2 {
		t.Fatalf("server saw %d requests", len(bodies))
	}
	if bodies[0] != bodies[1] || bodies[1] != `{"query":"q"}` {
		t.Errorf("bodies = %q", bodies)
	}
}

func TestDoInsufficientBalance(t *testing.T) {
	var requests int
	server := paywalledServer(t, &requests)
	defer server.Close()

	sender := &fakeSender{balance: 100}
	c := New(sender, x402.NetworkDevnet)

	_, err := c.Fetch(context.Background(), server.URL)
	assertClientCode(t, err, errors.ErrCodeInsufficientBalance)
	if sender.sends != 0 {
		t.Errorf("payment attempted with insufficient balance")
	}
}

func TestDoUnsupportedNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write(challengeBody(t, x402.NetworkMainnet, 60))
	}))
	defer server.Close()

	sender := &fakeSender{balance: 1_000_000}
	c := New(sender, x402.NetworkDevnet)

	_, err := c.Fetch(context.Background(), server.URL)
	assertClientCode(t, err, errors.ErrCodeUnsupportedRequirements)
	if sender.sends != 0 {
		t.Error("payment attempted for an unsupported challenge")
	}
}

func TestDoPaymentTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write(challengeBody(t, x402.NetworkDevnet, 1))
	}))
	defer server.Close()

	sender := &fakeSender{balance: 1_000_000, blockCtx: true}
	c := New(sender, x402.NetworkDevnet)

	_, err := c.Fetch(context.Background(), server.URL)
	assertClientCode(t, err, errors.ErrCodePaymentTimeout)
}

func assertClientCode(t *testing.T, err error, want errors.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var verr x402.VerificationError
	if !stderrors.As(err, &verr) {
		t.Fatalf("error %v is not a VerificationError", err)
	}
	if verr.Code != want {
		t.Errorf("code = %s, want %s", verr.Code, want)
	}
}
