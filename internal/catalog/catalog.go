// Package catalog holds the day's instrument universe: it decides when the
// cached snapshot can be reused, refreshes it from a supplier otherwise, and
// answers search queries against it.
package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"optiondesk/internal/errors"
	"optiondesk/internal/metrics"
	"optiondesk/internal/models"
	"optiondesk/internal/store"
	"optiondesk/pkg/utils"
)

// CacheVersion tags the cached snapshot schema. Bump it when Instrument changes.
const CacheVersion = "v2"

const syncDataType = "instruments"

// Supplier fetches the raw instrument universe.
type Supplier interface {
	FetchInstruments(ctx context.Context) ([]models.Instrument, error)
}

// Source reports where the last Load was served from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceSupplier Source = "supplier"
)

// Catalog is safe for concurrent use.
type Catalog struct {
	supplier Supplier
	store    store.CatalogStore
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu          sync.RWMutex
	instruments []models.Instrument
	asOf        string
	source      Source
}

// New creates a catalog backed by a supplier and a cache store.
func New(supplier Supplier, st store.CatalogStore, logger zerolog.Logger, m *metrics.Metrics) *Catalog {
	return &Catalog{
		supplier: supplier,
		store:    st,
		logger:   logger.With().Str("component", "catalog").Logger(),
		metrics:  m,
	}
}

// Load makes the catalog usable for today. A cached snapshot is used only if
// its version and date both match; otherwise the supplier is asked. When the
// supplier fails, any stale snapshot is deleted and a FetchError is returned.
// Retrying is left to the caller.
func (c *Catalog) Load(ctx context.Context, today time.Time) (*models.CatalogCache, error) {
	day := utils.DateLabel(today)

	cached, err := c.store.LoadCatalog(ctx)
	switch {
	case err == nil && cached.ValidFor(CacheVersion, day):
		c.install(cached, SourceCache)
		c.logger.Info().
			Str("date", day).
			Int("instruments", len(cached.Instruments)).
			Msg("Catalog loaded from cache")
		return cached, nil
	case err == nil:
		c.logger.Debug().
			Str("cached_version", cached.Version).
			Str("cached_date", cached.AsOf).
			Msg("Cached catalog is stale")
	case !errors.Is(err, errors.ErrCacheMiss):
		c.logger.Warn().Err(err).Msg("Catalog cache unreadable, refreshing")
	}

	return c.refresh(ctx, day, cached != nil)
}

// Refresh ignores the cache and fetches from the supplier.
func (c *Catalog) Refresh(ctx context.Context, today time.Time) (*models.CatalogCache, error) {
	return c.refresh(ctx, utils.DateLabel(today), true)
}

func (c *Catalog) refresh(ctx context.Context, day string, dropOnFailure bool) (*models.CatalogCache, error) {
	instruments, err := c.supplier.FetchInstruments(ctx)
	if err != nil {
		c.metrics.CatalogLoaded("error", 0)
		if dropOnFailure {
			if derr := c.store.DeleteCatalog(ctx); derr != nil {
				c.logger.Warn().Err(derr).Msg("Failed to drop stale catalog")
			}
		}
		var fe *errors.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, errors.NewFetchError("instruments", err)
	}

	cache := &models.CatalogCache{
		Version:     CacheVersion,
		AsOf:        day,
		Instruments: instruments,
	}

	if err := c.store.SaveCatalog(ctx, cache); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to persist catalog, continuing with in-memory copy")
	}
	if rec, ok := c.store.(store.SyncRecorder); ok {
		if err := rec.SetLastSync(syncDataType, time.Now()); err != nil {
			c.logger.Debug().Err(err).Msg("Failed to record catalog sync time")
		}
	}

	c.install(cache, SourceSupplier)
	c.logger.Info().
		Str("date", day).
		Int("instruments", len(instruments)).
		Msg("Catalog refreshed from supplier")

	return cache, nil
}

// Clear drops the persisted snapshot and the in-memory universe.
func (c *Catalog) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.instruments = nil
	c.asOf = ""
	c.source = ""
	c.mu.Unlock()
	return c.store.DeleteCatalog(ctx)
}

func (c *Catalog) install(cache *models.CatalogCache, source Source) {
	c.mu.Lock()
	c.instruments = cache.Instruments
	c.asOf = cache.AsOf
	c.source = source
	c.mu.Unlock()
	c.metrics.CatalogLoaded(string(source), len(cache.Instruments))
}

// Loaded reports whether a universe is available.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.asOf != ""
}

// Info returns the date and origin of the loaded universe.
func (c *Catalog) Info() (asOf string, source Source, count int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.asOf, c.source, len(c.instruments)
}

// LastSync returns when the supplier was last consulted, if the store tracks it.
func (c *Catalog) LastSync() time.Time {
	if rec, ok := c.store.(store.SyncRecorder); ok {
		return rec.GetLastSync(syncDataType)
	}
	return time.Time{}
}

// Instruments returns the loaded universe. The slice must not be modified.
func (c *Catalog) Instruments() []models.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instruments
}

// Query filters the loaded universe. See Query.
func (c *Catalog) Query(underlying models.Underlying, keyword string) []models.Instrument {
	return Query(c.Instruments(), underlying, keyword)
}

// Search runs the full search flow against the loaded universe.
func (c *Catalog) Search(underlying models.Underlying, keyword string, today time.Time) SearchResult {
	return Search(c.Instruments(), underlying, keyword, today)
}

// Lookup finds an instrument by key or trading symbol.
func (c *Catalog) Lookup(keyOrSymbol string) (models.Instrument, error) {
	return Lookup(c.Instruments(), keyOrSymbol)
}
