package vaultcrypt

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/absfs/absfs"
)

// DirIOSupport is a CryptorIOSupport that stores metadata sidecars as
// siblings inside one directory of an absfs filesystem. Writes go through a
// temp file and a rename, so readers never observe a half-written record.
type DirIOSupport struct {
	fs  absfs.FileSystem
	dir string
}

// NewDirIOSupport returns a sidecar store rooted at dir. The directory must
// exist.
func NewDirIOSupport(fs absfs.FileSystem, dir string) *DirIOSupport {
	return &DirIOSupport{fs: fs, dir: dir}
}

// ReadPathSpecificMetadata returns the sidecar's content, or nil when it
// does not exist.
func (s *DirIOSupport) ReadPathSpecificMetadata(name string) ([]byte, error) {
	f, err := s.fs.Open(path.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read metadata %s: %w", name, err)
	}
	return content, nil
}

// WritePathSpecificMetadata atomically replaces the sidecar's content.
func (s *DirIOSupport) WritePathSpecificMetadata(name string, data []byte) error {
	target := path.Join(s.dir, name)
	tmp := target + ".tmp"
	f, err := s.fs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write metadata %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return s.fs.Rename(tmp, target)
}
