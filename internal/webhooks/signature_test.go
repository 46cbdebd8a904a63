package webhooks

import (
	"strings"
	"testing"
)

func TestSignVerify(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"eventId":"evt_1","eventType":"payment.verified"}`)

	header := SignatureValue(secret, body)
	if !strings.HasPrefix(header, "sha256=") {
		t.Errorf("header %q missing sha256= prefix", header)
	}

	tests := []struct {
		name   string
		secret string
		body   []byte
		header string
		want   bool
	}{
		{name: "prefixed header", secret: secret, body: body, header: header, want: true},
		{name: "bare hex", secret: secret, body: body, header: Sign(secret, body), want: true},
		{name: "surrounding whitespace", secret: secret, body: body, header: " " + header + " ", want: true},
		{name: "wrong secret", secret: "other", body: body, header: header, want: false},
		{name: "tampered body", secret: secret, body: []byte(`{"eventId":"evt_2"}`), header: header, want: false},
		{name: "empty header", secret: secret, body: body, header: "", want: false},
		{name: "short hex", secret: secret, body: body, header: "sha256=abcd", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.secret, tt.body, tt.header); got != tt.want {
				t.Errorf("Verify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSignDeterministic(t *testing.T) {
	body := []byte("payload")
	if Sign("s", body) != Sign("s", body) {
		t.Error("Sign is not deterministic")
	}
	if Sign("s1", body) == Sign("s2", body) {
		t.Error("different secrets produced the same signature")
	}
}
