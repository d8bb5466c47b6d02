package token

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestDigest_Deterministic(t *testing.T) {
	t.Parallel()

	g, err := NewGenerator("")
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}

	raw, err := g.NewRawToken()
	if err != nil {
		t.Fatalf("NewRawToken: %v", err)
	}

	d1 := g.Digest(raw)
	d2 := g.Digest(raw)
	if d1 != d2 {
		t.Fatalf("digest not deterministic: %q != %q", d1, d2)
	}
	if len(d1) != 64 {
		t.Fatalf("digest length=%d want 64", len(d1))
	}
	if _, err := hex.DecodeString(d1); err != nil {
		t.Fatalf("digest is not hex: %v", err)
	}
	if d1 == raw {
		t.Fatalf("digest must differ from raw token")
	}
}

func TestNewRawToken_DistinctAndHex(t *testing.T) {
	t.Parallel()

	var g Generator
	seen := make(map[string]struct{})
	digests := make(map[string]struct{})

	for i := 0; i < 64; i++ {
		raw, err := g.NewRawToken()
		if err != nil {
			t.Fatalf("NewRawToken: %v", err)
		}
		if len(raw) != 2*RawTokenBytes {
			t.Fatalf("raw length=%d want %d", len(raw), 2*RawTokenBytes)
		}
		if _, dup := seen[raw]; dup {
			t.Fatalf("duplicate raw token")
		}
		seen[raw] = struct{}{}

		d := g.Digest(raw)
		if _, dup := digests[d]; dup {
			t.Fatalf("duplicate digest")
		}
		digests[d] = struct{}{}
	}
}

func TestDigest_HMACDiffersFromSHA(t *testing.T) {
	t.Parallel()

	plain, _ := NewGenerator("")
	keyed, err := NewGenerator(strings.Repeat("k", MinHMACKeyBytes))
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	if !keyed.HMACEnabled() || plain.HMACEnabled() {
		t.Fatalf("HMACEnabled mismatch")
	}

	if plain.Digest("abc") == keyed.Digest("abc") {
		t.Fatalf("expected keyed digest to differ")
	}
	if keyed.Digest("abc") != keyed.Digest("abc") {
		t.Fatalf("keyed digest not deterministic")
	}
}

func TestNewGenerator_ShortKey(t *testing.T) {
	t.Parallel()

	if _, err := NewGenerator("short"); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
}

func TestNewTokenID_Unique(t *testing.T) {
	t.Parallel()

	var g Generator
	a, b := g.NewTokenID(), g.NewTokenID()
	if a == "" || a == b {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}
