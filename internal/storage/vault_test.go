package storage

import (
	"bytes"
	"strings"
	"testing"
)

func TestVaultRoundTrip(t *testing.T) {
	vault, err := NewVault("device-secret")
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	plaintext := []byte(`{"accessToken":"AT","refreshToken":"RT"}`)
	sealed, err := vault.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if strings.Contains(sealed, "AT") {
		t.Error("sealed value leaks plaintext")
	}

	opened, err := vault.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("opened = %q, want %q", opened, plaintext)
	}
}

func TestVaultRequiresSecret(t *testing.T) {
	if _, err := NewVault(""); err == nil {
		t.Fatal("expected an error for an empty device secret")
	}
}

func TestVaultSealIsNonDeterministic(t *testing.T) {
	vault, err := NewVault("device-secret")
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	a, err := vault.Seal([]byte("token"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := vault.Seal([]byte("token"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if a == b {
		t.Error("two seals of the same plaintext produced identical ciphertext")
	}
}

func TestVaultOpenRejectsWrongKey(t *testing.T) {
	sealer, _ := NewVault("secret-one")
	opener, _ := NewVault("secret-two")

	sealed, err := sealer.Seal([]byte("token"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := opener.Open(sealed); err == nil {
		t.Fatal("expected an error opening with the wrong key")
	}
}

func TestVaultOpenRejectsGarbage(t *testing.T) {
	vault, _ := NewVault("device-secret")

	for _, sealed := range []string{"", "!!!", "c2hvcnQ"} {
		if _, err := vault.Open(sealed); err == nil {
			t.Errorf("Open(%q) = nil error, want failure", sealed)
		}
	}
}

func TestVaultOpenRejectsTamperedCiphertext(t *testing.T) {
	vault, _ := NewVault("device-secret")
	sealed, err := vault.Seal([]byte("token"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	tampered := []byte(sealed)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}
	if _, err := vault.Open(string(tampered)); err == nil {
		t.Fatal("expected an error for tampered ciphertext")
	}
}
