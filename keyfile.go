package vaultcrypt

import (
	"crypto/aes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters recorded in every new keyfile. Existing keyfiles carry
// their own parameters, which take precedence on read.
const (
	scryptSaltLength = 8
	scryptCostParam  = 1 << 14
	scryptBlockSize  = 8
)

// KeyFile is the persisted, passphrase-protected record of the two master
// keys. Field names and encodings are fixed by the on-disk contract; byte
// fields are standard base64 in the JSON document.
type KeyFile struct {
	ScryptSalt       []byte `json:"scryptSalt"`
	ScryptCostParam  int    `json:"scryptCostParam"`
	ScryptBlockSize  int    `json:"scryptBlockSize"`
	KeyLength        int    `json:"keyLength"`
	PrimaryMasterKey []byte `json:"primaryMasterKey"`
	HMacMasterKey    []byte `json:"hMacMasterKey"`
}

// EncryptMasterKey wraps the current master keys under a key derived from
// the passphrase and writes the keyfile record to out. On failure the
// written output is in an indeterminate partial state.
func (c *Cryptor) EncryptMasterKey(out io.Writer, passphrase string) error {
	if err := c.ensureKeys(); err != nil {
		return err
	}
	salt, err := c.randomData(scryptSaltLength)
	if err != nil {
		return err
	}
	kek, err := deriveKEK(passphrase, salt, scryptCostParam, scryptBlockSize, prefMasterKeyLengthBits)
	if err != nil {
		panic("vaultcrypt: invalid hard coded scrypt configuration: " + err.Error())
	}
	defer memguard.WipeBytes(kek)
	wrapCipher, err := aes.NewCipher(kek)
	if err != nil {
		panic("vaultcrypt: invalid hard coded key length: " + err.Error())
	}
	wrappedPrimary, err := wrapKey(wrapCipher, c.primaryMasterKey)
	if err != nil {
		panic("vaultcrypt: master key not wrappable: " + err.Error())
	}
	wrappedHmac, err := wrapKey(wrapCipher, c.hmacMasterKey)
	if err != nil {
		panic("vaultcrypt: master key not wrappable: " + err.Error())
	}

	keyfile := &KeyFile{
		ScryptSalt:       salt,
		ScryptCostParam:  scryptCostParam,
		ScryptBlockSize:  scryptBlockSize,
		KeyLength:        prefMasterKeyLengthBits,
		PrimaryMasterKey: wrappedPrimary,
		HMacMasterKey:    wrappedHmac,
	}
	if err := json.NewEncoder(out).Encode(keyfile); err != nil {
		return fmt.Errorf("write keyfile: %w", err)
	}
	return nil
}

// DecryptMasterKey reads a keyfile record from in, unwraps both master keys
// with the given passphrase, and installs them into this engine. Prior keys
// are replaced without being wiped; callers zeroize them beforehand if
// needed.
//
// A keyfile declaring a longer key than this build supports yields an
// UnsupportedKeyLengthError. An unwrap integrity failure yields
// ErrWrongPassword; every other read fault yields ErrDecryptFailed.
func (c *Cryptor) DecryptMasterKey(in io.Reader, passphrase string) error {
	var keyfile KeyFile
	if err := json.NewDecoder(in).Decode(&keyfile); err != nil {
		return decryptFailed("parse keyfile", err)
	}
	if keyfile.KeyLength > maxMasterKeyLengthBits {
		return &UnsupportedKeyLengthError{Requested: keyfile.KeyLength, Supported: maxMasterKeyLengthBits}
	}

	kek, err := deriveKEK(passphrase, keyfile.ScryptSalt, keyfile.ScryptCostParam, keyfile.ScryptBlockSize, keyfile.KeyLength)
	if err != nil {
		return decryptFailed("derive key encryption key", err)
	}
	defer memguard.WipeBytes(kek)
	wrapCipher, err := aes.NewCipher(kek)
	if err != nil {
		return decryptFailed("invalid key length in keyfile", err)
	}

	primary, err := unwrapKey(wrapCipher, keyfile.PrimaryMasterKey)
	if err != nil {
		return unwrapError("primary master key", err)
	}
	hmacKey, err := unwrapKey(wrapCipher, keyfile.HMacMasterKey)
	if err != nil {
		memguard.WipeBytes(primary)
		return unwrapError("hmac master key", err)
	}
	if len(primary) != keyfile.KeyLength/8 || len(hmacKey) != keyfile.KeyLength/8 {
		memguard.WipeBytes(primary)
		memguard.WipeBytes(hmacKey)
		return decryptFailed("wrapped key length inconsistent with keyLength", nil)
	}

	c.primaryMasterKey = primary
	c.hmacMasterKey = hmacKey
	c.destroyed = false
	return nil
}

func unwrapError(what string, err error) error {
	if errors.Is(err, errKeyWrapIntegrity) {
		return ErrWrongPassword
	}
	return decryptFailed("unwrap "+what, err)
}

// deriveKEK runs scrypt over the UTF-8 encoded passphrase with parallelism
// fixed at 1. The encoded passphrase buffer is wiped on every exit path.
func deriveKEK(passphrase string, salt []byte, costParam, blockSize, keyLengthBits int) ([]byte, error) {
	pw := []byte(passphrase)
	defer memguard.WipeBytes(pw)
	return scrypt.Key(pw, salt, costParam, blockSize, 1, keyLengthBits/8)
}
