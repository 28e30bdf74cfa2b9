// Package repomanager selects the credential store backing the server and
// owns its lifecycle: connection, schema migrations and shutdown.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/travelplanner/internal/server/repositories/users"
)

// InMemoryDSN selects the in-memory store instead of PostgreSQL.
const InMemoryDSN = "memory"

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	Close() error
}

// New returns the manager for dsn: in-memory for InMemoryDSN, PostgreSQL
// otherwise.
func New(ctx context.Context, dsn string) (RepositoryManager, error) {
	if dsn == InMemoryDSN {
		return NewInMemoryRepositoryManager(), nil
	}
	return NewPostgresRepositoryManager(ctx, dsn)
}
