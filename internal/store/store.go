// Package store provides persistence for the day-stamped instrument catalog.
package store

import (
	"context"
	"sync"
	"time"

	"optiondesk/internal/errors"
	"optiondesk/internal/models"
)

// CatalogKey is the fixed identifier the catalog snapshot is stored under.
const CatalogKey = "instruments_cache"

// CatalogStore persists one catalog snapshot. LoadCatalog returns
// errors.ErrCacheMiss when nothing is stored.
type CatalogStore interface {
	LoadCatalog(ctx context.Context) (*models.CatalogCache, error)
	SaveCatalog(ctx context.Context, cache *models.CatalogCache) error
	DeleteCatalog(ctx context.Context) error
	Close() error
}

// SyncRecorder is implemented by stores that track when a data set was last
// refreshed from its upstream.
type SyncRecorder interface {
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error
}

// MemoryStore keeps the catalog in process memory. It backs the "none" cache
// backend and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	cache    *models.CatalogCache
	lastSync map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lastSync: make(map[string]time.Time)}
}

// LoadCatalog returns a copy of the stored snapshot.
func (m *MemoryStore) LoadCatalog(ctx context.Context) (*models.CatalogCache, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cache == nil {
		return nil, errors.ErrCacheMiss
	}
	c := *m.cache
	c.Instruments = append([]models.Instrument(nil), m.cache.Instruments...)
	return &c, nil
}

// SaveCatalog replaces the stored snapshot.
func (m *MemoryStore) SaveCatalog(ctx context.Context, cache *models.CatalogCache) error {
	c := *cache
	c.Instruments = append([]models.Instrument(nil), cache.Instruments...)
	m.mu.Lock()
	m.cache = &c
	m.mu.Unlock()
	return nil
}

// DeleteCatalog drops the stored snapshot.
func (m *MemoryStore) DeleteCatalog(ctx context.Context) error {
	m.mu.Lock()
	m.cache = nil
	m.mu.Unlock()
	return nil
}

// GetLastSync returns the last sync time for a data type.
func (m *MemoryStore) GetLastSync(dataType string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync[dataType]
}

// SetLastSync records the last sync time for a data type.
func (m *MemoryStore) SetLastSync(dataType string, t time.Time) error {
	m.mu.Lock()
	m.lastSync[dataType] = t
	m.mu.Unlock()
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
