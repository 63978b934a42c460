// Package blob implements the sideband: an out-of-band file sink for large
// document content, keyed by document id. Repositories fall back to inline
// blobs when the sideband is unavailable.
//
// The sideband has no transaction concept. Callers must write the sideband
// blob before committing the store record that points at it, so a crash
// never leaves a record pointing at a missing blob. An orphan blob with no
// record is acceptable; the janitor sweeps those.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const ext = ".bin"

// Sideband is a flat directory of <id>.bin files.
type Sideband struct {
	root string
}

// Open ensures root exists and returns a sideband over it. An empty root
// returns a nil sideband, which reports itself unavailable.
func Open(root string) (*Sideband, error) {
	if root == "" {
		return nil, nil
	}
	if err := os.MkdirAll(root, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", root, err)
	}
	return &Sideband{root: root}, nil
}

// Available reports whether blobs can be written out-of-band.
func (s *Sideband) Available() bool {
	if s == nil {
		return false
	}
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

func (s *Sideband) path(id string) string {
	// document ids are opaque; flatten anything path-like
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
	return filepath.Join(s.root, safe+ext)
}

// Put writes the blob for id. The write goes to a temp file first and is
// renamed into place, so readers never observe a partial blob.
func (s *Sideband) Put(id string, blob []byte) error {
	tmp, err := os.CreateTemp(s.root, "put-*")
	if err != nil {
		return fmt.Errorf("sideband put %s: %w", id, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(blob); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return fmt.Errorf("sideband put %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("sideband put %s: %w", id, err)
	}
	if err := os.Rename(name, s.path(id)); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("sideband put %s: %w", id, err)
	}
	return nil
}

// Get reads the blob for id. os.IsNotExist distinguishes a missing blob.
func (s *Sideband) Get(id string) ([]byte, error) {
	b, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("sideband get %s: %w", id, err)
	}
	return b, nil
}

// Delete removes the blob for id. Deleting a missing blob is not an error.
func (s *Sideband) Delete(id string) error {
	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sideband delete %s: %w", id, err)
	}
	return nil
}

// Size returns the stored size for id, or 0 when absent.
func (s *Sideband) Size(id string) int64 {
	info, err := os.Stat(s.path(id))
	if err != nil {
		return 0
	}
	return info.Size()
}

// List returns the ids of every stored blob.
func (s *Sideband) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("sideband list: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	return ids, nil
}

// TotalSize returns the summed size of all stored blobs.
func (s *Sideband) TotalSize() (int64, error) {
	if !s.Available() {
		return 0, nil
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("sideband size: %w", err)
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.IsDir() {
			total += info.Size()
		}
	}
	return total, nil
}
