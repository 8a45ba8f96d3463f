package security

import "testing"

func TestHashAndCheck(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "secret1" {
		t.Fatalf("hash must not equal the plaintext")
	}

	if err := CheckPassword(hash, "secret1"); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := CheckPassword(hash, "secret2"); err == nil {
		t.Fatalf("expected mismatch")
	}
}

func TestBurnCompareDoesNotPanic(t *testing.T) {
	BurnCompare("anything")
	BurnCompare("")
}
