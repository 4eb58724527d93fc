// Package factstore keeps the facts harvested from each device session.
package factstore

import (
	"context"
	"errors"

	"github.com/andrej220/routerconfig/pkg/models"
)

var ErrNotFound = errors.New("facts not found")

// Store persists one record per device per run. Save is called from many
// workers at once.
type Store interface {
	Save(ctx context.Context, facts models.Facts) error
	Close() error
}

type Backend string

const (
	BackendNone   Backend = "none"
	BackendJSON   Backend = "json"
	BackendMongo  Backend = "mongo"
	BackendSQLite Backend = "sqlite"
)

var ErrInvalidBackend = errors.New("invalid facts backend")

// docID names a record the way every backend keys it.
func docID(f models.Facts) string {
	return f.Name + "_" + f.RunID.String()
}
