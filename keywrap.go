package vaultcrypt

import (
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
)

// AES key wrap per RFC 3394, used to protect the master keys inside the
// keyfile. The unwrap integrity check doubles as the wrong-passphrase
// signal.

// keyWrapIV is the RFC 3394 default initial value.
var keyWrapIV = [8]byte{0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6, 0xa6}

var errKeyWrapIntegrity = errors.New("key wrap integrity check failed")

// wrapKey wraps key under the given key-encrypting cipher. The key must be
// at least 16 bytes and a multiple of 8.
func wrapKey(kek cipher.Block, key []byte) ([]byte, error) {
	if len(key) < 16 || len(key)%8 != 0 {
		return nil, fmt.Errorf("key wrap: invalid key length %d", len(key))
	}
	n := len(key) / 8
	out := make([]byte, 8+len(key))
	copy(out[:8], keyWrapIV[:])
	copy(out[8:], key)

	buf := make([]byte, aesBlockLength)
	for j := 0; j <= 5; j++ {
		for i := 1; i <= n; i++ {
			copy(buf[:8], out[:8])
			copy(buf[8:], out[i*8:i*8+8])
			kek.Encrypt(buf, buf)
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(out[:8], binary.BigEndian.Uint64(buf[:8])^t)
			copy(out[i*8:], buf[8:])
		}
	}
	return out, nil
}

// unwrapKey reverses wrapKey and verifies the integrity value in constant
// time. errKeyWrapIntegrity means a wrong key-encrypting key or tampering.
func unwrapKey(kek cipher.Block, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 24 || len(wrapped)%8 != 0 {
		return nil, fmt.Errorf("key wrap: invalid ciphertext length %d", len(wrapped))
	}
	n := len(wrapped)/8 - 1
	a := make([]byte, 8)
	copy(a, wrapped[:8])
	out := make([]byte, len(wrapped)-8)
	copy(out, wrapped[8:])

	buf := make([]byte, aesBlockLength)
	for j := 5; j >= 0; j-- {
		for i := n; i >= 1; i-- {
			t := uint64(n*j + i)
			binary.BigEndian.PutUint64(buf[:8], binary.BigEndian.Uint64(a)^t)
			copy(buf[8:], out[(i-1)*8:i*8])
			kek.Decrypt(buf, buf)
			copy(a, buf[:8])
			copy(out[(i-1)*8:], buf[8:])
		}
	}
	if subtle.ConstantTimeCompare(a, keyWrapIV[:]) != 1 {
		return nil, errKeyWrapIntegrity
	}
	return out, nil
}
