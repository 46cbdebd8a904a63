// Command x402fetch fetches a payment-gated URL, settling the 402 challenge
// with a local Solana wallet.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"

	"github.com/latchpay/server/internal/solana"
	"github.com/latchpay/server/pkg/x402"
	"github.com/latchpay/server/pkg/x402/client"
)

func main() {
	var (
		url     = flag.String("url", "", "gated URL to fetch")
		keypair = flag.String("keypair", "", "path to Solana keypair (JSON produced by solana-keygen)")
		network = flag.String("network", x402.NetworkDevnet, "x402 network to pay on")
		rpcURL  = flag.String("rpc", "", "Solana RPC endpoint (defaults per network)")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall request timeout")
	)
	flag.Parse()

	_ = godotenv.Load()

	if *url == "" {
		log.Fatal("url flag is required")
	}
	if !x402.IsSupportedNetwork(*network) {
		log.Fatalf("unsupported network %q", *network)
	}

	key, err := loadKey(*keypair)
	if err != nil {
		log.Fatalf("load keypair: %v", err)
	}

	endpoint := *rpcURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://api.%s.solana.com", x402.ClusterName(*network))
	}

	sender := client.NewSolanaSender(key, endpoint)
	c := client.New(sender, *network)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := c.Fetch(ctx, *url)
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}
	defer resp.Body.Close()

	log.Printf("wallet %s -> %s: %s", sender.PublicKey(), *url, resp.Status)
	if _, err := io.Copy(os.Stdout, resp.Body); err != nil {
		log.Fatalf("read response: %v", err)
	}
}

// loadKey reads the keypair file, or the WALLET_PRIVATE_KEY environment
// variable when no file is given.
func loadKey(path string) (solanago.PrivateKey, error) {
	if path != "" {
		return solanago.PrivateKeyFromSolanaKeygenFile(path)
	}
	raw := os.Getenv("WALLET_PRIVATE_KEY")
	if raw == "" {
		return nil, fmt.Errorf("provide -keypair or set WALLET_PRIVATE_KEY")
	}
	return solana.ParsePrivateKey(raw)
}
