package vaultcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
)

// sivCipher implements AES-SIV (RFC 5297) deterministic authenticated
// encryption with two independent keys: the HMAC master key drives S2V
// (CMAC) and the primary master key drives CTR. This matches a combined SIV
// key of macKey ‖ aesKey and pins the on-disk filename format.
//
// Determinism is the point: the same cleartext name must always yield the
// same storage name.
type sivCipher struct {
	s2vBlock cipher.Block
	ctrBlock cipher.Block
}

func newSivCipher(aesKey, macKey []byte) (*sivCipher, error) {
	s2vBlock, err := aes.NewCipher(macKey)
	if err != nil {
		return nil, fmt.Errorf("siv mac key: %w", err)
	}
	ctrBlock, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("siv encryption key: %w", err)
	}
	return &sivCipher{s2vBlock: s2vBlock, ctrBlock: ctrBlock}, nil
}

// Seal encrypts plaintext and returns siv ‖ ciphertext.
func (s *sivCipher) Seal(plaintext []byte) []byte {
	v := s.s2v(plaintext)
	out := make([]byte, aesBlockLength+len(plaintext))
	copy(out, v)
	s.ctrCrypt(v, plaintext, out[aesBlockLength:])
	return out
}

// Open decrypts data produced by Seal and verifies the synthetic IV.
func (s *sivCipher) Open(data []byte) ([]byte, error) {
	if len(data) < aesBlockLength {
		return nil, decryptFailed("siv ciphertext too short", nil)
	}
	v := data[:aesBlockLength]
	plaintext := make([]byte, len(data)-aesBlockLength)
	s.ctrCrypt(v, data[aesBlockLength:], plaintext)
	if subtle.ConstantTimeCompare(v, s.s2v(plaintext)) != 1 {
		return nil, decryptFailed("siv authentication failed", nil)
	}
	return plaintext, nil
}

// s2v computes the synthetic IV over the plaintext (RFC 5297 section 2.4,
// with no associated data components).
func (s *sivCipher) s2v(plaintext []byte) []byte {
	d := s.cmac(make([]byte, aesBlockLength))

	var t []byte
	if len(plaintext) >= aesBlockLength {
		t = make([]byte, len(plaintext))
		copy(t, plaintext)
		xorInto(t[len(t)-aesBlockLength:], d)
	} else {
		t = dbl(d)
		xorInto(t, pad10(plaintext))
	}
	return s.cmac(t)
}

// cmac computes AES-CMAC over data with the S2V block cipher.
func (s *sivCipher) cmac(data []byte) []byte {
	k1, k2 := cmacSubkeys(s.s2vBlock)

	n := (len(data) + aesBlockLength - 1) / aesBlockLength
	if n == 0 {
		n = 1
	}

	lastBlock := make([]byte, aesBlockLength)
	if len(data) == 0 || len(data)%aesBlockLength != 0 {
		lastBlock = pad10(data[(n-1)*aesBlockLength:])
		xorInto(lastBlock, k2)
	} else {
		copy(lastBlock, data[(n-1)*aesBlockLength:])
		xorInto(lastBlock, k1)
	}

	mac := make([]byte, aesBlockLength)
	for i := 0; i < n-1; i++ {
		xorInto(mac, data[i*aesBlockLength:(i+1)*aesBlockLength])
		s.s2vBlock.Encrypt(mac, mac)
	}
	xorInto(mac, lastBlock)
	s.s2vBlock.Encrypt(mac, mac)
	return mac
}

// ctrCrypt runs AES-CTR with the SIV as IV, clearing the two reserved bits
// (RFC 5297 section 2.5).
func (s *sivCipher) ctrCrypt(iv, src, dst []byte) {
	q := make([]byte, aesBlockLength)
	copy(q, iv)
	q[8] &= 0x7f
	q[12] &= 0x7f
	cipher.NewCTR(s.ctrBlock, q).XORKeyStream(dst, src)
}

// dbl doubles a block in GF(2^128).
func dbl(block []byte) []byte {
	result := make([]byte, aesBlockLength)
	var carry byte
	for i := aesBlockLength - 1; i >= 0; i-- {
		result[i] = block[i]<<1 | carry
		carry = block[i] >> 7
	}
	if carry != 0 {
		result[aesBlockLength-1] ^= 0x87
	}
	return result
}

// pad10 pads data to one block with 0x80 followed by zeros.
func pad10(data []byte) []byte {
	result := make([]byte, aesBlockLength)
	n := copy(result, data)
	result[n] = 0x80
	return result
}

func xorInto(dst, src []byte) {
	for i := 0; i < len(dst) && i < len(src); i++ {
		dst[i] ^= src[i]
	}
}

func cmacSubkeys(block cipher.Block) ([]byte, []byte) {
	l := make([]byte, aesBlockLength)
	block.Encrypt(l, l)
	k1 := dbl(l)
	k2 := dbl(k1)
	return k1, k2
}
