package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"optiondesk/internal/errors"
	"optiondesk/internal/models"
	"optiondesk/pkg/utils"
)

// SQLiteStore implements CatalogStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	key       string
	mu        sync.RWMutex
	syncTimes map[string]time.Time
}

// NewSQLiteStore opens (or creates) the catalog database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		key:       CatalogKey,
		syncTimes: make(map[string]time.Time),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- One row per cached catalog snapshot
	CREATE TABLE IF NOT EXISTS catalog_meta (
		cache_key TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		as_of TEXT NOT NULL,
		instrument_count INTEGER NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Instrument rows belonging to a snapshot, seq keeps supplier order
	CREATE TABLE IF NOT EXISTS catalog_instruments (
		cache_key TEXT NOT NULL,
		seq INTEGER NOT NULL,
		instrument_key TEXT NOT NULL,
		trading_symbol TEXT NOT NULL,
		underlying TEXT NOT NULL,
		strike_price TEXT NOT NULL,
		option_type TEXT NOT NULL,
		expiry TEXT NOT NULL,
		lot_size INTEGER NOT NULL,
		PRIMARY KEY (cache_key, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_instruments_underlying
		ON catalog_instruments(cache_key, underlying);

	-- Sync status table
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCatalog replaces the stored snapshot in a single transaction.
func (s *SQLiteStore) SaveCatalog(ctx context.Context, cache *models.CatalogCache) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_instruments WHERE cache_key = ?`, s.key); err != nil {
		return fmt.Errorf("failed to clear instruments: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO catalog_meta (cache_key, version, as_of, instrument_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.key, cache.Version, cache.AsOf, len(cache.Instruments), time.Now())
	if err != nil {
		return fmt.Errorf("failed to write catalog meta: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_instruments
			(cache_key, seq, instrument_key, trading_symbol, underlying, strike_price, option_type, expiry, lot_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, inst := range cache.Instruments {
		_, err := stmt.ExecContext(ctx, s.key, i,
			inst.Key, inst.TradingSymbol, string(inst.Underlying), inst.StrikePrice.String(),
			string(inst.OptionType), utils.DateLabel(inst.Expiry), inst.LotSize)
		if err != nil {
			return fmt.Errorf("failed to insert instrument %s: %w", inst.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// LoadCatalog reads the stored snapshot back in supplier order.
func (s *SQLiteStore) LoadCatalog(ctx context.Context) (*models.CatalogCache, error) {
	cache := &models.CatalogCache{}
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT version, as_of, instrument_count FROM catalog_meta WHERE cache_key = ?
	`, s.key).Scan(&cache.Version, &cache.AsOf, &count)
	if err == sql.ErrNoRows {
		return nil, errors.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog meta: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument_key, trading_symbol, underlying, strike_price, option_type, expiry, lot_size
		FROM catalog_instruments
		WHERE cache_key = ?
		ORDER BY seq ASC
	`, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	cache.Instruments = make([]models.Instrument, 0, count)
	for rows.Next() {
		var (
			inst                models.Instrument
			underlying, optType string
			strike, expiry      string
		)
		if err := rows.Scan(&inst.Key, &inst.TradingSymbol, &underlying, &strike, &optType, &expiry, &inst.LotSize); err != nil {
			return nil, fmt.Errorf("failed to scan instrument: %w", err)
		}
		inst.Underlying = models.Underlying(underlying)
		inst.OptionType = models.OptionType(optType)
		if inst.StrikePrice, err = decimal.NewFromString(strike); err != nil {
			return nil, fmt.Errorf("instrument %s: bad strike %q: %w", inst.Key, strike, err)
		}
		if inst.Expiry, err = utils.ParseDateLabel(expiry); err != nil {
			return nil, fmt.Errorf("instrument %s: bad expiry %q: %w", inst.Key, expiry, err)
		}
		cache.Instruments = append(cache.Instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(cache.Instruments) != count {
		return nil, fmt.Errorf("catalog truncated: %d of %d instruments", len(cache.Instruments), count)
	}

	return cache, nil
}

// DeleteCatalog removes the stored snapshot.
func (s *SQLiteStore) DeleteCatalog(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_instruments WHERE cache_key = ?`, s.key); err != nil {
		return fmt.Errorf("failed to delete instruments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_meta WHERE cache_key = ?`, s.key); err != nil {
		return fmt.Errorf("failed to delete catalog meta: %w", err)
	}

	return tx.Commit()
}

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType string) time.Time {
	s.mu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.mu.RUnlock()
		return t
	}
	s.mu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, dataType).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.mu.Lock()
	s.syncTimes[dataType] = lastSync
	s.mu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType string, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, dataType, t, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.mu.Lock()
	s.syncTimes[dataType] = t
	s.mu.Unlock()

	return nil
}
