package vaultcrypt

import (
	"encoding/base32"
	"strings"
)

// File naming conventions shared by every vault. These values are part of
// the on-disk contract and must not change.
const (
	// BasicFileExt is the extension of normally encrypted files.
	BasicFileExt = ".aes"

	// LongNameFileExt is the extension of files whose encrypted name
	// exceeded EncryptedFilenameLengthLimit and was shortened.
	LongNameFileExt = ".lng.aes"

	// MetadataFileExt is the extension of the per-group sidecar holding the
	// full encrypted names behind shortened ones.
	MetadataFileExt = ".meta"

	// EncryptedFilenameLengthLimit is the longest storage name written in
	// short form. Chosen for compatibility with length-restricted
	// filesystems.
	EncryptedFilenameLengthLimit = 143

	// LongNamePrefixLength is the number of leading base32 characters shared
	// by all members of a long-name group.
	LongNamePrefixLength = 8
)

// filenameCodec is RFC 4648 base32 with standard padding, fixed by the
// naming contract.
var filenameCodec = base32.StdEncoding

// IsPayloadFile reports whether a directory entry name carries encrypted
// file content. Metadata sidecars and foreign files do not match, so
// directory walkers can enumerate exactly the payload files.
func IsPayloadFile(name string) bool {
	return strings.HasSuffix(name, BasicFileExt) || strings.HasSuffix(name, LongNameFileExt)
}
