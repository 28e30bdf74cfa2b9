package repomanager

import (
	"context"

	"github.com/dmitrijs2005/travelplanner/internal/server/repositories/users"
)

// InMemoryRepositoryManager backs the server with process memory. Data is
// lost on restart.
type InMemoryRepositoryManager struct {
	users *users.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{users: users.NewInMemoryRepository()}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Users() users.Repository {
	return m.users
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
