package vaultcrypt

import (
	"hash"
	"io"

	"github.com/absfs/absfs"
)

// SeekableByteChannel is the byte-oriented channel the engine reads and
// writes one encrypted file through. Semantics match a POSIX file
// descriptor opened on a regular file.
type SeekableByteChannel interface {
	io.ReadWriteSeeker

	// Truncate changes the size of the underlying file.
	Truncate(size int64) error
}

// absfs files are channels as-is.
var _ SeekableByteChannel = (absfs.File)(nil)

// macReader feeds every byte read through it to a running MAC. It sits
// between the channel and the stream cipher so the MAC observes ciphertext
// in exactly the order it is stored.
type macReader struct {
	r   io.Reader
	mac hash.Hash
}

func (m *macReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	if n > 0 {
		m.mac.Write(p[:n])
	}
	return n, err
}

// macWriter passes every write on to the channel and feeds the bytes the
// channel accepted to a running MAC.
type macWriter struct {
	w   io.Writer
	mac hash.Hash
}

func (m *macWriter) Write(p []byte) (int, error) {
	n, err := m.w.Write(p)
	if n > 0 {
		m.mac.Write(p[:n])
	}
	return n, err
}
