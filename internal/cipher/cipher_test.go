package cipher

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	c, err := NewChaCha20Poly1305(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	sealed, err := c.Seal("refresh-token-value")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if sealed == "refresh-token-value" {
		t.Fatalf("seal did not transform plaintext")
	}
	opened, err := c.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "refresh-token-value" {
		t.Fatalf("round trip mismatch: got %q", opened)
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	key := make([]byte, 32)
	c, err := NewChaCha20Poly1305(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	if _, err := c.Open("not-valid-base64!!"); err == nil {
		t.Fatalf("expected error opening garbage ciphertext")
	}
}
