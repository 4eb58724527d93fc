package factstore

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/andrej220/routerconfig/pkg/models"
	"github.com/andrej220/routerconfig/pkg/persistence"
)

// JSONStore writes each record to <dir>/<run id>/<device>.json.
type JSONStore struct {
	Dir        string
	serializer persistence.Serializer
	writer     persistence.Writer
}

var _ Store = (*JSONStore)(nil)

func NewJSONStore(dir string) *JSONStore {
	return &JSONStore{
		Dir:        dir,
		serializer: persistence.JSONSerializer{Prefix: persistence.Prefix, Indent: persistence.Indent},
		writer:     persistence.FileWriter{Overwrite: true},
	}
}

func (s *JSONStore) Path(f models.Facts) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(f.Name)
	return filepath.Join(s.Dir, f.RunID.String(), name+".json")
}

func (s *JSONStore) Save(ctx context.Context, f models.Facts) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := persistence.WriteJSONToFile(f, s.Path(f), s.serializer, s.writer); err != nil {
		return fmt.Errorf("save facts for %s: %w", f.Name, err)
	}
	return nil
}

func (s *JSONStore) Close() error { return nil }
