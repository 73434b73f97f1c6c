package vaultcrypt

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
)

// CryptorIOSupport is the engine's window to the sidecar files the
// long-filename scheme needs. Implementations resolve the given sibling
// filename within the directory currently being translated.
//
// The long-name protocol is a read-modify-write; implementations must
// serialize concurrent encrypts touching the same metadata name (one mutex
// per group prefix is enough), or two UUIDs could be minted for the same
// encrypted name.
type CryptorIOSupport interface {
	// ReadPathSpecificMetadata returns the named sidecar's content, or
	// nil with no error when the sidecar does not exist.
	ReadPathSpecificMetadata(name string) ([]byte, error)

	// WritePathSpecificMetadata replaces the named sidecar's content.
	// Atomic replace semantics are recommended.
	WritePathSpecificMetadata(name string, data []byte) error
}

// EncryptPathComponent deterministically encrypts a single path component
// into its storage name.
//
// Encryption blows up the name length through the AES-SIV overhead and
// base32 encoding; results that would exceed the filename length limit are
// shortened to <prefix><uuid>.lng.aes, with the full encrypted name parked
// in the group's metadata sidecar. Re-encrypting the same component reuses
// the existing UUID, so storage names stay stable.
func (c *Cryptor) EncryptPathComponent(cleartext string, support CryptorIOSupport) (string, error) {
	if err := c.ensureKeys(); err != nil {
		return "", err
	}
	siv, err := newSivCipher(c.primaryMasterKey, c.hmacMasterKey)
	if err != nil {
		return "", err
	}
	encrypted := filenameCodec.EncodeToString(siv.Seal([]byte(cleartext)))
	if len(encrypted)+len(BasicFileExt) <= EncryptedFilenameLengthLimit {
		return encrypted + BasicFileExt, nil
	}

	groupPrefix := encrypted[:LongNamePrefixLength]
	metadataName := groupPrefix + MetadataFileExt
	metadata, err := loadLongFilenameMetadata(support, metadataName)
	if err != nil {
		return "", err
	}
	id, err := metadata.uuidForEncryptedFilename(encrypted, c.rng)
	if err != nil {
		return "", err
	}
	if err := storeLongFilenameMetadata(support, metadataName, metadata); err != nil {
		return "", err
	}
	return groupPrefix + id.String() + LongNameFileExt, nil
}

// DecryptPathComponent reverses EncryptPathComponent. Malformed components,
// missing metadata entries, and SIV authentication failures all surface as
// ErrDecryptFailed.
func (c *Cryptor) DecryptPathComponent(encrypted string, support CryptorIOSupport) (string, error) {
	if err := c.ensureKeys(); err != nil {
		return "", err
	}

	var ciphertext string
	switch {
	case strings.HasSuffix(encrypted, LongNameFileExt):
		basename := strings.TrimSuffix(encrypted, LongNameFileExt)
		if len(basename) <= LongNamePrefixLength {
			return "", decryptFailed("malformed long filename "+encrypted, nil)
		}
		groupPrefix := basename[:LongNamePrefixLength]
		id, err := uuid.Parse(basename[LongNamePrefixLength:])
		if err != nil {
			return "", decryptFailed("malformed long filename "+encrypted, err)
		}
		metadata, err := loadLongFilenameMetadata(support, groupPrefix+MetadataFileExt)
		if err != nil {
			return "", err
		}
		ct, ok := metadata.encryptedFilenameForUUID(id)
		if !ok {
			return "", decryptFailed("unknown long filename "+encrypted, nil)
		}
		ciphertext = ct
	case hasSuffixFold(encrypted, BasicFileExt):
		ciphertext = encrypted[:len(encrypted)-len(BasicFileExt)]
	default:
		return "", decryptFailed("unsupported path component "+encrypted, nil)
	}

	raw, err := filenameCodec.DecodeString(ciphertext)
	if err != nil {
		return "", decryptFailed("bad filename encoding", err)
	}
	siv, err := newSivCipher(c.primaryMasterKey, c.hmacMasterKey)
	if err != nil {
		return "", err
	}
	cleartext, err := siv.Open(raw)
	if err != nil {
		return "", err
	}
	return string(cleartext), nil
}

// EncryptPath splits cleartextPath by cleartextPathSep, encrypts each
// component, and joins the results with encryptedPathSep. Empty components
// pass through, so an absolute-like leading separator round-trips.
// Separator characters must not occur inside cleartext components.
func (c *Cryptor) EncryptPath(cleartextPath string, encryptedPathSep, cleartextPathSep rune, support CryptorIOSupport) (string, error) {
	components := strings.Split(cleartextPath, string(cleartextPathSep))
	encrypted := make([]string, len(components))
	for i, component := range components {
		if component == "" {
			continue
		}
		e, err := c.EncryptPathComponent(component, support)
		if err != nil {
			return "", err
		}
		encrypted[i] = e
	}
	return strings.Join(encrypted, string(encryptedPathSep)), nil
}

// DecryptPath reverses EncryptPath. The first failing component fails the
// whole path with that component's error: ErrDecryptFailed for malformed or
// unauthentic names, metadata I/O errors and ErrCryptorDestroyed as they are.
func (c *Cryptor) DecryptPath(encryptedPath string, encryptedPathSep, cleartextPathSep rune, support CryptorIOSupport) (string, error) {
	components := strings.Split(encryptedPath, string(encryptedPathSep))
	cleartext := make([]string, len(components))
	for i, component := range components {
		if component == "" {
			continue
		}
		d, err := c.DecryptPathComponent(component, support)
		if err != nil {
			return "", err
		}
		cleartext[i] = d
	}
	return strings.Join(cleartext, string(cleartextPathSep)), nil
}

// LongFilenameMetadata maps alternative-name UUIDs to the full encrypted
// filenames of one long-name group. The mapping is unique in both
// directions.
type LongFilenameMetadata struct {
	Filenames map[string]string `json:"filenames"`
}

func newLongFilenameMetadata() *LongFilenameMetadata {
	return &LongFilenameMetadata{Filenames: make(map[string]string)}
}

func (m *LongFilenameMetadata) encryptedFilenameForUUID(id uuid.UUID) (string, bool) {
	encrypted, ok := m.Filenames[id.String()]
	return encrypted, ok
}

// uuidForEncryptedFilename returns the UUID already mapped to encrypted, or
// mints a new random one and inserts it.
func (m *LongFilenameMetadata) uuidForEncryptedFilename(encrypted string, rng io.Reader) (uuid.UUID, error) {
	for idStr, enc := range m.Filenames {
		if enc != encrypted {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return uuid.Nil, decryptFailed("corrupt filename metadata entry "+idStr, err)
		}
		return id, nil
	}
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate alternative filename: %w", err)
	}
	m.Filenames[id.String()] = encrypted
	return id, nil
}

func loadLongFilenameMetadata(support CryptorIOSupport, name string) (*LongFilenameMetadata, error) {
	content, err := support.ReadPathSpecificMetadata(name)
	if err != nil {
		return nil, fmt.Errorf("read filename metadata %s: %w", name, err)
	}
	if content == nil {
		return newLongFilenameMetadata(), nil
	}
	metadata := newLongFilenameMetadata()
	if err := json.Unmarshal(content, metadata); err != nil {
		return nil, decryptFailed("parse filename metadata "+name, err)
	}
	if metadata.Filenames == nil {
		metadata.Filenames = make(map[string]string)
	}
	return metadata, nil
}

func storeLongFilenameMetadata(support CryptorIOSupport, name string, metadata *LongFilenameMetadata) error {
	content, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode filename metadata %s: %w", name, err)
	}
	if err := support.WritePathSpecificMetadata(name, content); err != nil {
		return fmt.Errorf("write filename metadata %s: %w", name, err)
	}
	return nil
}

// hasSuffixFold is strings.HasSuffix ignoring ASCII case.
func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
