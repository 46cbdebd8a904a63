package solana

import (
	"encoding/json"
	"strings"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
)

func TestParsePrivateKeyBase58(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	parsed, err := ParsePrivateKey(key.String())
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if !parsed.PublicKey().Equals(key.PublicKey()) {
		t.Errorf("parsed key %s, want %s", parsed.PublicKey(), key.PublicKey())
	}

	// Surrounding whitespace is tolerated.
	if _, err := ParsePrivateKey("  " + key.String() + "\n"); err != nil {
		t.Errorf("whitespace-wrapped key rejected: %v", err)
	}
}

func TestParsePrivateKeyJSONArray(t *testing.T) {
	key, err := solanago.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		t.Fatalf("marshal key bytes: %v", err)
	}

	parsed, err := ParsePrivateKey(string(raw))
	if err != nil {
		t.Fatalf("ParsePrivateKey: %v", err)
	}
	if !parsed.PublicKey().Equals(key.PublicKey()) {
		t.Errorf("parsed key %s, want %s", parsed.PublicKey(), key.PublicKey())
	}
}

func TestParsePrivateKeyRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "whitespace only", key: "   "},
		{name: "garbage base58", key: "not!!valid"},
		{name: "unterminated array", key: "[1,2,3"},
		{name: "short array", key: "[1,2,3]"},
		{name: "long array", key: "[" + strings.Repeat("1,", 65) + "1]"},
		{name: "non-numeric entry", key: "[" + strings.Repeat("1,", 63) + "x]"},
		{name: "out of range entry", key: "[" + strings.Repeat("1,", 63) + "300]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePrivateKey(tt.key); err == nil {
				t.Errorf("key %q accepted", tt.key)
			}
		})
	}
}
