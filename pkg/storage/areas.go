package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// AreaStore lays out downloaded areas as one directory per area id under
// root. The presence of that directory is what marks an area downloaded.
type AreaStore struct {
	fs   afero.Fs
	root string
}

func NewAreaStore(fs afero.Fs, root string) *AreaStore {
	return &AreaStore{fs: fs, root: root}
}

// NewOsAreaStore stores areas on the real filesystem.
func NewOsAreaStore(root string) *AreaStore {
	return NewAreaStore(afero.NewOsFs(), root)
}

func (s *AreaStore) Fs() afero.Fs {
	return s.fs
}

func (s *AreaStore) Root() string {
	return s.root
}

func (s *AreaStore) Dir(areaID string) string {
	return filepath.Join(s.root, filepath.Base(areaID))
}

// EnsureRoot creates the root directory.
func (s *AreaStore) EnsureRoot() error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("unable to create directory %s: %w", s.root, err)
	}
	return nil
}

func validID(areaID string) bool {
	base := filepath.Base(areaID)
	return areaID != "" && base != "." && base != ".." && base != string(filepath.Separator)
}

func (s *AreaStore) Exists(areaID string) bool {
	if !validID(areaID) {
		return false
	}
	ok, err := afero.DirExists(s.fs, s.Dir(areaID))
	return err == nil && ok
}

// Delete removes an area's directory. It reports false when there was
// nothing to delete.
func (s *AreaStore) Delete(areaID string) (bool, error) {
	if !s.Exists(areaID) {
		return false, nil
	}
	if err := s.fs.RemoveAll(s.Dir(areaID)); err != nil {
		return false, fmt.Errorf("failed to delete area %s: %w", areaID, err)
	}
	return true, nil
}

func (s *AreaStore) Open(areaID, name string) (afero.File, error) {
	return s.fs.Open(filepath.Join(s.Dir(areaID), name))
}

func (s *AreaStore) Stat(areaID, name string) (os.FileInfo, error) {
	return s.fs.Stat(filepath.Join(s.Dir(areaID), name))
}

// List returns the ids of every area directory under root.
func (s *AreaStore) List() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Size sums the bytes stored for an area.
func (s *AreaStore) Size(areaID string) (int64, error) {
	var total int64
	err := afero.Walk(s.fs, s.Dir(areaID), func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
