package vaultcrypt

import (
	"bytes"
	"strings"
	"testing"
)

func testSivCipher(t *testing.T, seed uint64) *sivCipher {
	t.Helper()
	rng := testRand(seed)
	aesKey := make([]byte, 32)
	macKey := make([]byte, 32)
	rng.Read(aesKey)
	rng.Read(macKey)
	siv, err := newSivCipher(aesKey, macKey)
	if err != nil {
		t.Fatalf("failed to create siv cipher: %v", err)
	}
	return siv
}

func TestSivCipher_SealOpen(t *testing.T) {
	siv := testSivCipher(t, 10)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"single byte", []byte{0x42}},
		{"short text", []byte("hello.txt")},
		{"one block", bytes.Repeat([]byte{0xAB}, 16)},
		{"block boundary minus one", bytes.Repeat([]byte{0x01}, 15)},
		{"block boundary plus one", bytes.Repeat([]byte{0x02}, 17)},
		{"unicode", []byte("résumé über 律.pdf")},
		{"long", []byte(strings.Repeat("long filename segment ", 20))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed := siv.Seal(tt.plaintext)
			if len(sealed) != aesBlockLength+len(tt.plaintext) {
				t.Errorf("sealed length = %d, want %d", len(sealed), aesBlockLength+len(tt.plaintext))
			}
			opened, err := siv.Open(sealed)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			if !bytes.Equal(opened, tt.plaintext) {
				t.Errorf("round trip mismatch: got %x, want %x", opened, tt.plaintext)
			}
		})
	}
}

func TestSivCipher_Deterministic(t *testing.T) {
	siv := testSivCipher(t, 11)
	plaintext := []byte("same name, same ciphertext")

	first := siv.Seal(plaintext)
	second := siv.Seal(plaintext)
	if !bytes.Equal(first, second) {
		t.Error("siv encryption is not deterministic")
	}
}

func TestSivCipher_KeysMatter(t *testing.T) {
	a := testSivCipher(t, 12)
	b := testSivCipher(t, 13)
	plaintext := []byte("some name")

	if bytes.Equal(a.Seal(plaintext), b.Seal(plaintext)) {
		t.Error("different keys produced identical ciphertext")
	}
	if _, err := b.Open(a.Seal(plaintext)); !IsDecryptFailed(err) {
		t.Errorf("Open under wrong keys: got %v, want decrypt failure", err)
	}
}

func TestSivCipher_DetectsTampering(t *testing.T) {
	siv := testSivCipher(t, 14)
	sealed := siv.Seal([]byte("tamper target"))

	for _, offset := range []int{0, 8, 15, 16, len(sealed) - 1} {
		tampered := bytes.Clone(sealed)
		tampered[offset] ^= 0x80
		if _, err := siv.Open(tampered); !IsDecryptFailed(err) {
			t.Errorf("Open of blob tampered at %d: got %v, want decrypt failure", offset, err)
		}
	}
}

func TestSivCipher_RejectsShortInput(t *testing.T) {
	siv := testSivCipher(t, 15)
	if _, err := siv.Open(make([]byte, 15)); !IsDecryptFailed(err) {
		t.Errorf("Open of 15-byte blob: got %v, want decrypt failure", err)
	}
}
