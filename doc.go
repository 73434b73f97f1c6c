// Package vaultcrypt is the cryptographic engine for a client-side,
// zero-knowledge file vault: cleartext files and directory trees are stored
// as opaque encrypted files inside an ordinary backing directory, and only a
// holder of the vault passphrase can recover names and contents.
//
// # Overview
//
// The engine owns two master keys (an AES key and an HMAC key), persisted in
// a passphrase-protected keyfile. It encrypts path components
// deterministically with AES-SIV so that the same cleartext name always maps
// to the same storage name, and it encrypts file contents with AES-CTR under
// a per-file random IV, authenticated by HMAC-SHA-256 over the full
// ciphertext.
//
// The engine performs no file I/O of its own. Callers hand it a
// SeekableByteChannel for each encrypted file (absfs.File satisfies the
// interface) and a CryptorIOSupport for the small sidecar records the
// long-filename scheme needs.
//
// # Keyfile
//
// The keyfile is a JSON record of the scrypt parameters and the two master
// keys, each wrapped with AES key wrap (RFC 3394) under a key derived from
// the passphrase. An unwrap integrity failure surfaces as ErrWrongPassword.
//
// # Encrypted file format
//
// Every encrypted file is a single binary blob:
//
//	offset  0, 16 bytes: counting IV (8 random bytes followed by a 64-bit
//	                     big-endian block counter starting at 0)
//	offset 16, 32 bytes: HMAC-SHA-256 over all bytes from offset 64 on
//	offset 48, 16 bytes: AES-ECB block holding the big-endian plaintext length
//	offset 64, N bytes:  AES-CTR ciphertext of the plaintext, zero-padded to
//	                     a block boundary, plus up to 10% random fake blocks
//
// There is no version byte; compatibility is by position. The padding and
// fake blocks conceal the exact plaintext length from anyone without the
// primary key, within a bounded factor.
//
// # Encrypted names
//
// A path component encrypts to base32(AES-SIV(name)) + ".aes". Names whose
// encrypted form would exceed the filename length limit are shortened to
// <prefix><uuid>.lng.aes, with the full encrypted name parked in a shared
// <prefix>.meta sidecar.
//
// # Security considerations
//
// Protected against:
//   - Reading names or contents without the passphrase
//   - Tampering with file contents (detected on full-file reads)
//   - Offline passphrase brute force (scrypt key derivation)
//
// Not protected against:
//   - Leaking the directory tree shape and approximate file sizes
//   - Tampering when only DecryptRange is used (partial reads skip the MAC)
//   - Memory disclosure while the engine holds unwrapped keys
//
// DecryptFile delivers plaintext before the MAC verdict and reports the
// failure afterwards; callers that require integrity before use must call
// IsAuthentic first or buffer the output.
package vaultcrypt
