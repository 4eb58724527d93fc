package filestore

import (
	"fmt"
	"os"

	"github.com/andrej220/routerconfig/pkg/config/configstore"
	"gopkg.in/yaml.v3"
)

var _ configstore.ConfigStore = (*FileStore)(nil)

// FileStore keeps a configuration document in a YAML file.
type FileStore struct {
	Path string
}

func New(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load(out any) error {
	if out == nil {
		return fmt.Errorf("Load: output parameter must not be nil")
	}

	bytes, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("Load: failed to read file %s: %w", f.Path, err)
	}

	if len(bytes) == 0 {
		return fmt.Errorf("Load: config file %s is empty", f.Path)
	}

	if err := yaml.Unmarshal(bytes, out); err != nil {
		return fmt.Errorf("Load: failed to parse YAML in %s: %w", f.Path, err)
	}

	return nil
}

// Save writes the document atomically. The file holds credentials, so it is
// created with 0600.
func (f *FileStore) Save(in any) error {
	if in == nil {
		return fmt.Errorf("Save: input parameter must not be nil")
	}

	bytes, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("Save: failed to marshal YAML: %w", err)
	}

	tmpPath := f.Path + ".tmp"
	if err := os.WriteFile(tmpPath, bytes, 0600); err != nil {
		return fmt.Errorf("Save: failed to write temp file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, f.Path); err != nil {
		return fmt.Errorf("Save: failed to replace %s with %s: %w", f.Path, tmpPath, err)
	}

	return nil
}
