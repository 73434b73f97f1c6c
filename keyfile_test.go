package vaultcrypt

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestMasterKey_RoundTrip(t *testing.T) {
	source := testCryptor(t, 20)
	var keyfile bytes.Buffer
	if err := source.EncryptMasterKey(&keyfile, "correct horse battery staple"); err != nil {
		t.Fatalf("EncryptMasterKey failed: %v", err)
	}

	restored := testCryptor(t, 21)
	if err := restored.DecryptMasterKey(&keyfile, "correct horse battery staple"); err != nil {
		t.Fatalf("DecryptMasterKey failed: %v", err)
	}
	if !bytes.Equal(restored.primaryMasterKey, source.primaryMasterKey) {
		t.Error("primary master key not restored")
	}
	if !bytes.Equal(restored.hmacMasterKey, source.hmacMasterKey) {
		t.Error("hmac master key not restored")
	}
}

func TestDecryptMasterKey_WrongPassphrase(t *testing.T) {
	source := testCryptor(t, 22)
	var keyfile bytes.Buffer
	if err := source.EncryptMasterKey(&keyfile, "correct horse battery staple"); err != nil {
		t.Fatalf("EncryptMasterKey failed: %v", err)
	}

	restored := testCryptor(t, 23)
	err := restored.DecryptMasterKey(bytes.NewReader(keyfile.Bytes()), "Correct horse battery staple")
	if !IsWrongPassword(err) {
		t.Errorf("DecryptMasterKey with wrong passphrase: got %v, want ErrWrongPassword", err)
	}
	// keys of the target engine stay untouched on failure
	if bytes.Equal(restored.primaryMasterKey, source.primaryMasterKey) {
		t.Error("failed unlock must not install keys")
	}
}

func TestKeyFile_FieldSet(t *testing.T) {
	c := testCryptor(t, 24)
	var keyfile bytes.Buffer
	if err := c.EncryptMasterKey(&keyfile, "pass"); err != nil {
		t.Fatalf("EncryptMasterKey failed: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(keyfile.Bytes(), &fields); err != nil {
		t.Fatalf("keyfile is not a JSON object: %v", err)
	}
	for _, name := range []string{
		"scryptSalt", "scryptCostParam", "scryptBlockSize",
		"keyLength", "primaryMasterKey", "hMacMasterKey",
	} {
		if _, ok := fields[name]; !ok {
			t.Errorf("keyfile is missing field %q", name)
		}
	}
	if len(fields) != 6 {
		t.Errorf("keyfile has %d fields, want 6", len(fields))
	}

	var parsed KeyFile
	if err := json.Unmarshal(keyfile.Bytes(), &parsed); err != nil {
		t.Fatalf("keyfile does not round trip: %v", err)
	}
	if parsed.KeyLength != prefMasterKeyLengthBits {
		t.Errorf("keyLength = %d, want %d", parsed.KeyLength, prefMasterKeyLengthBits)
	}
	if parsed.ScryptCostParam != scryptCostParam || parsed.ScryptBlockSize != scryptBlockSize {
		t.Errorf("scrypt params = (%d, %d), want (%d, %d)",
			parsed.ScryptCostParam, parsed.ScryptBlockSize, scryptCostParam, scryptBlockSize)
	}
	if len(parsed.ScryptSalt) != scryptSaltLength {
		t.Errorf("salt length = %d, want %d", len(parsed.ScryptSalt), scryptSaltLength)
	}
	// RFC 3394 wrapping adds 8 bytes to each 32-byte key
	if len(parsed.PrimaryMasterKey) != 40 || len(parsed.HMacMasterKey) != 40 {
		t.Errorf("wrapped key lengths = (%d, %d), want (40, 40)",
			len(parsed.PrimaryMasterKey), len(parsed.HMacMasterKey))
	}
}

func TestDecryptMasterKey_UnsupportedKeyLength(t *testing.T) {
	keyfile := `{"scryptSalt":"AAAAAAAAAAA=","scryptCostParam":16384,"scryptBlockSize":8,` +
		`"keyLength":512,"primaryMasterKey":"AAAA","hMacMasterKey":"AAAA"}`

	c := testCryptor(t, 25)
	err := c.DecryptMasterKey(strings.NewReader(keyfile), "pass")
	if !IsUnsupportedKeyLength(err) {
		t.Fatalf("got %v, want UnsupportedKeyLengthError", err)
	}
	var ue *UnsupportedKeyLengthError
	errors.As(err, &ue)
	if ue.Requested != 512 || ue.Supported != maxMasterKeyLengthBits {
		t.Errorf("error carries (%d, %d), want (512, %d)", ue.Requested, ue.Supported, maxMasterKeyLengthBits)
	}
}

func TestDecryptMasterKey_MalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		keyfile string
	}{
		{"not json", "definitely not json"},
		{"truncated wrapped key", `{"scryptSalt":"c2FsdHNhbHQ=","scryptCostParam":2,"scryptBlockSize":8,` +
			`"keyLength":256,"primaryMasterKey":"AAAAAAAA","hMacMasterKey":"AAAAAAAA"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCryptor(t, 26)
			err := c.DecryptMasterKey(strings.NewReader(tt.keyfile), "pass")
			if !IsDecryptFailed(err) {
				t.Errorf("got %v, want decrypt failure", err)
			}
			if IsWrongPassword(err) {
				t.Error("structure faults must not masquerade as a wrong passphrase")
			}
		})
	}
}

func TestDecryptMasterKey_TamperedWrappedKey(t *testing.T) {
	source := testCryptor(t, 27)
	var buf bytes.Buffer
	if err := source.EncryptMasterKey(&buf, "pass"); err != nil {
		t.Fatalf("EncryptMasterKey failed: %v", err)
	}
	var keyfile KeyFile
	if err := json.Unmarshal(buf.Bytes(), &keyfile); err != nil {
		t.Fatalf("failed to parse keyfile: %v", err)
	}
	keyfile.PrimaryMasterKey[3] ^= 0x01
	tampered, _ := json.Marshal(&keyfile)

	c := testCryptor(t, 28)
	if err := c.DecryptMasterKey(bytes.NewReader(tampered), "pass"); !IsWrongPassword(err) {
		t.Errorf("tampered wrapped key: got %v, want ErrWrongPassword", err)
	}
}
