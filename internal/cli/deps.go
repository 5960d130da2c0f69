package cli

import (
	"context"
	"fmt"
	"time"

	"optiondesk/internal/broker"
	"optiondesk/internal/catalog"
	"optiondesk/internal/errors"
	"optiondesk/internal/logging"
	"optiondesk/internal/store"
	"optiondesk/pkg/utils"
)

// backend returns the REST client for the trading backend.
func (a *App) backend() *broker.Client {
	return broker.NewClient(broker.ClientConfig{
		BaseURL: a.Config.Server.BaseURL,
		Timeout: a.Config.Server.Timeout,
		Logger:  a.Logger,
	})
}

func (a *App) kite() (*broker.KiteSupplier, error) {
	return broker.NewKiteSupplier(broker.KiteConfig{
		APIKey:      a.Config.Credentials.Kite.APIKey,
		AccessToken: a.Config.Credentials.Kite.AccessToken,
		Logger:      a.Logger,
	})
}

// instrumentSource picks the catalog supplier named in the config.
func (a *App) instrumentSource() (broker.InstrumentSource, error) {
	if a.Config.Catalog.Supplier == "kite" {
		return a.kite()
	}
	return a.backend(), nil
}

// balanceSource follows the catalog supplier: Kite users read funds from
// Kite, everyone else from the backend.
func (a *App) balanceSource() (broker.BalanceSource, error) {
	if a.Config.Catalog.Supplier == "kite" {
		return a.kite()
	}
	return a.backend(), nil
}

// openStore opens the configured catalog cache.
func (a *App) openStore() (store.CatalogStore, error) {
	switch a.Config.Catalog.CacheBackend {
	case "sqlite":
		return store.NewSQLiteStore(a.Config.Catalog.CachePath)
	case "redis":
		return store.NewRedisStore(store.RedisConfig{
			Addr:     a.Config.Catalog.RedisAddr,
			Password: a.Config.Catalog.RedisPassword,
			DB:       a.Config.Catalog.RedisDB,
		})
	case "none":
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", a.Config.Catalog.CacheBackend)
}

// openCatalog builds the catalog. The returned close func releases the store.
func (a *App) openCatalog(ctx context.Context) (*catalog.Catalog, func(), error) {
	logger := logging.FromContext(ctx)
	src, err := a.instrumentSource()
	if err != nil {
		return nil, nil, err
	}
	st, err := a.openStore()
	if err != nil {
		logger.Warn().Err(err).Str("backend", a.Config.Catalog.CacheBackend).Msg("Catalog cache unavailable, using memory")
		st = store.NewMemoryStore()
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close catalog store")
		}
	}
	return catalog.New(src, st, logger, a.Metrics), closeFn, nil
}

// loadCatalog opens the catalog and makes it usable for today, retrying
// transient supplier failures.
func (a *App) loadCatalog(ctx context.Context) (*catalog.Catalog, func(), error) {
	cat, closeFn, err := a.openCatalog(ctx)
	if err != nil {
		return nil, nil, err
	}

	retry := utils.DefaultRetryConfig()
	retry.Retryable = func(err error) bool {
		return !errors.Is(err, errors.ErrAuthExpired)
	}
	_, err = utils.RetryWithResult(ctx, retry, func() (int, error) {
		cache, err := cat.Load(ctx, time.Now())
		if err != nil {
			return 0, err
		}
		return len(cache.Instruments), nil
	})
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return cat, closeFn, nil
}
