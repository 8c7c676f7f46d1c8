package ids

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestNewIsOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		if next <= prev {
			t.Fatalf("expected %s > %s", next, prev)
		}
		prev = next
	}
}

func TestTokenEncoding(t *testing.T) {
	tok, err := Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if len(tok) != 43 {
		t.Fatalf("expected 43 chars, got %d (%s)", len(tok), tok)
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Fatalf("token is not url-safe: %s", tok)
	}
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != TokenBytes {
		t.Fatalf("expected %d bytes, got %d", TokenBytes, len(raw))
	}
}

func TestTokenUnique(t *testing.T) {
	seen := make(map[string]struct{}, 512)
	for i := 0; i < 512; i++ {
		tok := MustToken()
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %s", tok)
		}
		seen[tok] = struct{}{}
	}
}
