package vaultcrypt

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	mathrand "math/rand/v2"
)

// Layout of the fixed file header. There is no version byte; compatibility
// is by position.
const (
	fileHeaderMacOffset  = 16
	fileHeaderSizeOffset = 48
	fileHeaderSize       = 64

	contentMacLength = 32

	contentBufferSize = 32 * 1024
)

func (c *Cryptor) contentCipherBlock() cipher.Block {
	block, err := aes.NewCipher(c.primaryMasterKey)
	if err != nil {
		panic("vaultcrypt: invalid primary master key: " + err.Error())
	}
	return block
}

func (c *Cryptor) contentMac() hash.Hash {
	return hmac.New(sha256.New, c.hmacMasterKey)
}

// DecryptedContentLength reads and decrypts the length field at offset 48.
// It returns ok=false when the header is too short to contain the field. A
// successfully decrypted length of zero is a concrete zero, not unknown.
//
// The field is not covered by its own authentication; callers must verify
// the file MAC separately before trusting the value.
func (c *Cryptor) DecryptedContentLength(encryptedFile SeekableByteChannel) (length int64, ok bool, err error) {
	if err := c.ensureKeys(); err != nil {
		return 0, false, err
	}
	if _, err := encryptedFile.Seek(fileHeaderSizeOffset, io.SeekStart); err != nil {
		return 0, false, &HeaderError{Op: "seek content length", Err: err}
	}
	buf := make([]byte, aesBlockLength)
	if _, err := io.ReadFull(encryptedFile, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, false, nil
		}
		return 0, false, &HeaderError{Op: "read content length", Err: err}
	}
	c.contentCipherBlock().Decrypt(buf, buf)
	return int64(binary.BigEndian.Uint64(buf[:8])), true, nil
}

// writeEncryptedContentLength writes the single ECB block at offset 48
// holding the big-endian plaintext length, zero padded.
func (c *Cryptor) writeEncryptedContentLength(encryptedFile SeekableByteChannel, contentLength int64) error {
	buf := make([]byte, aesBlockLength)
	binary.BigEndian.PutUint64(buf[:8], uint64(contentLength))
	c.contentCipherBlock().Encrypt(buf, buf)
	if _, err := encryptedFile.Seek(fileHeaderSizeOffset, io.SeekStart); err != nil {
		return fmt.Errorf("seek content length field: %w", err)
	}
	if _, err := encryptedFile.Write(buf); err != nil {
		return fmt.Errorf("write content length field: %w", err)
	}
	return nil
}

// EncryptFile truncates the channel and writes plaintextFile as one
// encrypted file, returning the number of plaintext bytes consumed.
//
// Until the final MAC and length field are in place the file on the channel
// is unauthentic and reports length zero, so readers racing with an
// in-progress write observe a well-formed empty file rather than garbage.
// On failure the channel keeps that zero-length header and the file stays
// unreadable until rewritten.
func (c *Cryptor) EncryptFile(plaintextFile io.Reader, encryptedFile SeekableByteChannel) (int64, error) {
	if err := c.ensureKeys(); err != nil {
		return 0, err
	}
	if err := encryptedFile.Truncate(0); err != nil {
		return 0, fmt.Errorf("truncate encrypted file: %w", err)
	}
	if _, err := encryptedFile.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek encrypted file: %w", err)
	}

	// counting IV: 8 random bytes, then the CTR block counter starting at 0
	iv, err := c.randomData(aesBlockLength)
	if err != nil {
		return 0, err
	}
	binary.BigEndian.PutUint64(iv[8:], 0)
	if _, err := encryptedFile.Write(iv); err != nil {
		return 0, fmt.Errorf("write iv: %w", err)
	}
	if _, err := encryptedFile.Write(make([]byte, contentMacLength)); err != nil {
		return 0, fmt.Errorf("write mac placeholder: %w", err)
	}
	if err := c.writeEncryptedContentLength(encryptedFile, 0); err != nil {
		return 0, err
	}

	mac := c.contentMac()
	tap := &macWriter{w: encryptedFile, mac: mac}
	encrypting := cipher.StreamWriter{S: cipher.NewCTR(c.contentCipherBlock(), iv), W: tap}
	buffered := bufio.NewWriterSize(encrypting, contentBufferSize)

	plaintextSize, err := io.Copy(buffered, plaintextFile)
	if err != nil {
		return plaintextSize, fmt.Errorf("encrypt content: %w", err)
	}

	// fill the last block, then append fake blocks; both are keystream-only
	// padding, the length field pins the real size
	zeros := make([]byte, aesBlockLength)
	buffered.Write(zeros[:aesBlockLength-int(plaintextSize%aesBlockLength)])

	plaintextBlocks := (plaintextSize + aesBlockLength - 1) / aesBlockLength
	for i := fakeBlockCount(plaintextBlocks); i > 0; i-- {
		buffered.Write(zeros)
	}
	if err := buffered.Flush(); err != nil {
		return plaintextSize, fmt.Errorf("encrypt content: %w", err)
	}

	if _, err := encryptedFile.Seek(fileHeaderMacOffset, io.SeekStart); err != nil {
		return plaintextSize, fmt.Errorf("seek mac field: %w", err)
	}
	if _, err := encryptedFile.Write(mac.Sum(nil)); err != nil {
		return plaintextSize, fmt.Errorf("write mac: %w", err)
	}
	if err := c.writeEncryptedContentLength(encryptedFile, plaintextSize); err != nil {
		return plaintextSize, err
	}
	return plaintextSize, nil
}

// fakeBlockCount draws a uniform count in [0, ceil(blocks/10)]. Obfuscation
// only; this does not need a CSPRNG.
func fakeBlockCount(plaintextBlocks int64) int64 {
	maxFakeBlocks := (plaintextBlocks + 9) / 10
	if maxFakeBlocks <= 0 {
		return 0
	}
	return mathrand.Int64N(maxFakeBlocks + 1)
}

// DecryptFile streams the whole file to plaintextFile and returns the
// number of plaintext bytes written.
//
// The MAC over the full ciphertext is verified after the plaintext has been
// delivered: reads stay single-pass and files suffering non-malicious bit
// rot remain recoverable. On a mismatch the already-written output must be
// treated as unauthentic and the error surfaced to the user.
func (c *Cryptor) DecryptFile(encryptedFile SeekableByteChannel, plaintextFile io.Writer) (int64, error) {
	if err := c.ensureKeys(); err != nil {
		return 0, err
	}
	if _, err := encryptedFile.Seek(0, io.SeekStart); err != nil {
		return 0, &HeaderError{Op: "seek", Err: err}
	}
	iv := make([]byte, aesBlockLength)
	if _, err := io.ReadFull(encryptedFile, iv); err != nil {
		return 0, &HeaderError{Op: "read iv", Err: shortReadErr(err)}
	}
	storedMac := make([]byte, contentMacLength)
	if _, err := io.ReadFull(encryptedFile, storedMac); err != nil {
		return 0, &HeaderError{Op: "read mac", Err: shortReadErr(err)}
	}
	fileSize, ok, err := c.DecryptedContentLength(encryptedFile)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &HeaderError{Op: "read content length", Err: io.ErrUnexpectedEOF}
	}

	if _, err := encryptedFile.Seek(fileHeaderSize, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek content: %w", err)
	}
	mac := c.contentMac()
	tap := &macReader{r: encryptedFile, mac: mac}
	decrypting := cipher.StreamReader{S: cipher.NewCTR(c.contentCipherBlock(), iv), R: tap}

	bytesDecrypted, err := io.CopyN(plaintextFile, decrypting, fileSize)
	if err != nil && err != io.EOF {
		return bytesDecrypted, fmt.Errorf("decrypt content: %w", err)
	}

	// drain padding and fake blocks so the tag covers the full ciphertext
	if _, err := io.Copy(io.Discard, tap); err != nil {
		return bytesDecrypted, fmt.Errorf("drain ciphertext: %w", err)
	}
	if !hmac.Equal(storedMac, mac.Sum(nil)) {
		return bytesDecrypted, ErrMacAuthenticationFailed
	}
	return bytesDecrypted, nil
}

// DecryptRange decrypts up to length bytes starting at plaintext offset pos,
// re-seeding the CTR counter at the first relevant block. The range is not
// clipped to the stored content length: bytes past the end of the content
// are the decrypted padding and fake blocks. The MAC is not verified;
// callers needing integrity authenticate the file by other means first.
func (c *Cryptor) DecryptRange(encryptedFile SeekableByteChannel, plaintextFile io.Writer, pos, length int64) (int64, error) {
	if err := c.ensureKeys(); err != nil {
		return 0, err
	}
	if pos < 0 || length < 0 {
		return 0, fmt.Errorf("invalid range: pos %d length %d", pos, length)
	}
	if _, err := encryptedFile.Seek(0, io.SeekStart); err != nil {
		return 0, &HeaderError{Op: "seek", Err: err}
	}
	iv := make([]byte, aesBlockLength)
	if _, err := io.ReadFull(encryptedFile, iv); err != nil {
		return 0, &HeaderError{Op: "read iv", Err: shortReadErr(err)}
	}

	firstRelevantBlock := pos / aesBlockLength
	beginOfFirstRelevantBlock := firstRelevantBlock * aesBlockLength
	offsetInsideFirstRelevantBlock := pos - beginOfFirstRelevantBlock
	binary.BigEndian.PutUint64(iv[8:], uint64(firstRelevantBlock))

	if _, err := encryptedFile.Seek(fileHeaderSize+beginOfFirstRelevantBlock, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek content: %w", err)
	}
	decrypting := cipher.StreamReader{S: cipher.NewCTR(c.contentCipherBlock(), iv), R: encryptedFile}

	if offsetInsideFirstRelevantBlock > 0 {
		if _, err := io.CopyN(io.Discard, decrypting, offsetInsideFirstRelevantBlock); err != nil {
			if err == io.EOF {
				return 0, nil
			}
			return 0, fmt.Errorf("decrypt range: %w", err)
		}
	}
	n, err := io.CopyN(plaintextFile, decrypting, length)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("decrypt range: %w", err)
	}
	return n, nil
}

// IsAuthentic recomputes the MAC over the full ciphertext and compares it to
// the stored tag in constant time. A file too short to hold the header is a
// HeaderError, not an inauthentic file.
func (c *Cryptor) IsAuthentic(encryptedFile SeekableByteChannel) (bool, error) {
	if err := c.ensureKeys(); err != nil {
		return false, err
	}
	if _, err := encryptedFile.Seek(0, io.SeekStart); err != nil {
		return false, &HeaderError{Op: "seek", Err: err}
	}
	header := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(encryptedFile, header); err != nil {
		return false, &HeaderError{Op: "read header", Err: shortReadErr(err)}
	}
	storedMac := header[fileHeaderMacOffset : fileHeaderMacOffset+contentMacLength]

	mac := c.contentMac()
	tap := &macReader{r: encryptedFile, mac: mac}
	if _, err := io.Copy(io.Discard, tap); err != nil {
		return false, fmt.Errorf("read ciphertext: %w", err)
	}
	return hmac.Equal(storedMac, mac.Sum(nil)), nil
}

// shortReadErr normalizes the bare io.EOF from a zero-byte read so header
// errors always wrap io.ErrUnexpectedEOF on truncation.
func shortReadErr(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
