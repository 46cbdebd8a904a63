// Package solana holds wallet key helpers shared by the server and the
// paying client.
package solana

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ParsePrivateKey parses a Solana private key from either base58 (the
// solana-keygen default) or a JSON byte array (Phantom wallet export).
func ParsePrivateKey(keyStr string) (solana.PrivateKey, error) {
	keyStr = strings.TrimSpace(keyStr)
	if keyStr == "" {
		return solana.PrivateKey{}, fmt.Errorf("private key string is empty")
	}

	if !strings.HasPrefix(keyStr, "[") {
		privateKey, err := solana.PrivateKeyFromBase58(keyStr)
		if err != nil {
			return solana.PrivateKey{}, fmt.Errorf("invalid base58 private key: %w", err)
		}
		return privateKey, nil
	}

	return parsePrivateKeyArray(keyStr)
}

func parsePrivateKeyArray(keyStr string) (solana.PrivateKey, error) {
	if !strings.HasSuffix(keyStr, "]") {
		return solana.PrivateKey{}, fmt.Errorf("private key array must be in JSON format: [1,2,3,...]")
	}

	parts := strings.Split(keyStr[1:len(keyStr)-1], ",")
	if len(parts) != 64 {
		return solana.PrivateKey{}, fmt.Errorf("private key must be a 64-byte array, got %d bytes", len(parts))
	}

	keyBytes := make([]byte, 64)
	for i, part := range parts {
		val, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return solana.PrivateKey{}, fmt.Errorf("invalid byte value at position %d: %w", i, err)
		}
		if val < 0 || val > 255 {
			return solana.PrivateKey{}, fmt.Errorf("byte value at position %d out of range: %d", i, val)
		}
		keyBytes[i] = byte(val)
	}

	return solana.PrivateKey(keyBytes), nil
}
