package vaultcrypt

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

const (
	// aesBlockLength is the AES block size in bytes.
	aesBlockLength = 16

	// prefMasterKeyLengthBits is the master key length used for new vaults.
	prefMasterKeyLengthBits = 256

	// maxMasterKeyLengthBits is the longest master key this build accepts
	// from a keyfile.
	maxMasterKeyLengthBits = 256
)

// Cryptor is the engine for a single vault. It holds the two master keys and
// performs all keyfile, filename, and content crypto.
//
// A Cryptor is caller-synchronized: DecryptMasterKey and Destroy must not
// overlap with any other operation. Content operations on disjoint channels
// may run concurrently while the key state is stable; same-file operations
// need external locking.
type Cryptor struct {
	rng              io.Reader
	primaryMasterKey []byte
	hmacMasterKey    []byte
	destroyed        bool
}

// NewCryptor creates an engine with freshly generated master keys drawn from
// the platform entropy source. The keys are lost unless persisted with
// EncryptMasterKey.
func NewCryptor() (*Cryptor, error) {
	return newCryptor(rand.Reader)
}

func newCryptor(rng io.Reader) (*Cryptor, error) {
	c := &Cryptor{rng: rng}
	primary, err := c.randomData(prefMasterKeyLengthBits / 8)
	if err != nil {
		return nil, err
	}
	hmacKey, err := c.randomData(prefMasterKeyLengthBits / 8)
	if err != nil {
		memguard.WipeBytes(primary)
		return nil, err
	}
	c.primaryMasterKey = primary
	c.hmacMasterKey = hmacKey
	return c, nil
}

func (c *Cryptor) randomData(length int) ([]byte, error) {
	b := make([]byte, length)
	if _, err := io.ReadFull(c.rng, b); err != nil {
		return nil, fmt.Errorf("read from csprng: %w", err)
	}
	return b, nil
}

// Destroy wipes both master keys. Afterwards every crypto operation fails
// with ErrCryptorDestroyed until DecryptMasterKey installs new keys.
func (c *Cryptor) Destroy() {
	memguard.WipeBytes(c.primaryMasterKey)
	memguard.WipeBytes(c.hmacMasterKey)
	c.primaryMasterKey = nil
	c.hmacMasterKey = nil
	c.destroyed = true
}

func (c *Cryptor) ensureKeys() error {
	if c.destroyed || len(c.primaryMasterKey) == 0 || len(c.hmacMasterKey) == 0 {
		return ErrCryptorDestroyed
	}
	return nil
}
