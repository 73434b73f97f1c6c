package vaultcrypt

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure kinds the engine reports across its
// boundary.
var (
	// ErrWrongPassword is returned by DecryptMasterKey when the keyfile's
	// wrapped keys fail their unwrap integrity check. It is produced by no
	// other operation.
	ErrWrongPassword = errors.New("wrong passphrase")

	// ErrDecryptFailed covers ciphertext integrity and structure faults at
	// read time: filename authentication failures, malformed long names,
	// unknown component suffixes, missing metadata entries.
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrMacAuthenticationFailed reports a content MAC mismatch. It is a
	// kind of ErrDecryptFailed and is raised by DecryptFile after the
	// plaintext has already been delivered.
	ErrMacAuthenticationFailed = fmt.Errorf("%w: mac authentication failed", ErrDecryptFailed)

	// ErrCryptorDestroyed is returned by every crypto operation after
	// Destroy has wiped the key material, until DecryptMasterKey installs
	// new keys.
	ErrCryptorDestroyed = errors.New("cryptor destroyed, key material has been wiped")
)

// UnsupportedKeyLengthError reports a keyfile that declares a longer master
// key than this build supports.
type UnsupportedKeyLengthError struct {
	Requested int // key length declared by the keyfile, in bits
	Supported int // maximum key length this build supports, in bits
}

func (e *UnsupportedKeyLengthError) Error() string {
	return fmt.Sprintf("unsupported key length: keyfile requires %d bit keys, at most %d bit supported", e.Requested, e.Supported)
}

// HeaderError reports a failure to read or position within the fixed 64-byte
// header of an encrypted file, including short reads on truncated files.
type HeaderError struct {
	Op  string // what the engine was doing, e.g. "read iv"
	Err error  // underlying channel error, io.ErrUnexpectedEOF on short reads
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("failed to read file header: %s: %v", e.Op, e.Err)
}

func (e *HeaderError) Unwrap() error {
	return e.Err
}

// decryptError carries context for an ErrDecryptFailed condition.
type decryptError struct {
	reason string
	err    error
}

func decryptFailed(reason string, err error) error {
	return &decryptError{reason: reason, err: err}
}

func (e *decryptError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("decryption failed: %s: %v", e.reason, e.err)
	}
	return "decryption failed: " + e.reason
}

func (e *decryptError) Unwrap() error {
	return e.err
}

func (e *decryptError) Is(target error) bool {
	return target == ErrDecryptFailed
}

// IsWrongPassword checks if an error reports a wrong keyfile passphrase.
func IsWrongPassword(err error) bool {
	return errors.Is(err, ErrWrongPassword)
}

// IsDecryptFailed checks if an error is a decryption failure of any kind,
// including MAC authentication failures.
func IsDecryptFailed(err error) bool {
	return errors.Is(err, ErrDecryptFailed)
}

// IsMacAuthenticationFailed checks if an error is a content MAC mismatch.
func IsMacAuthenticationFailed(err error) bool {
	return errors.Is(err, ErrMacAuthenticationFailed)
}

// IsUnsupportedKeyLength checks if an error is an UnsupportedKeyLengthError.
func IsUnsupportedKeyLength(err error) bool {
	var ue *UnsupportedKeyLengthError
	return errors.As(err, &ue)
}

// IsHeaderError checks if an error is a HeaderError.
func IsHeaderError(err error) bool {
	var he *HeaderError
	return errors.As(err, &he)
}
