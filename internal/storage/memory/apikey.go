package memory

import (
	"context"
	"sync"

	"github.com/burgershop/order-service/internal/domain/auth"
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository implements auth.Repository in memory.
type APIKeyRepository struct {
	mu     sync.RWMutex
	byHash map[string]auth.APIKeyInfo
}

// NewAPIKeyRepository returns an empty APIKeyRepository.
func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{byHash: make(map[string]auth.APIKeyInfo)}
}

// Add registers a key by its hash.
func (r *APIKeyRepository) Add(info auth.APIKeyInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash[info.KeyHash] = info
}

func (r *APIKeyRepository) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return &info, nil
}
