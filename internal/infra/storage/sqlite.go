package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"trade_sync/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage is the transactional store for Order, Trade, and Position records.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens (or creates) the SQLite database. An empty path resolves
// to the per-user data directory.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		resolved, err := defaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
		dbPath = resolved
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Order{}, &domain.Trade{}, &domain.Position{}, &SyncState{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

func defaultDBPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "TradeSync", "data", "tradesync.db"), nil
}

// SyncState is a key-value row for sync bookkeeping (watermarks).
type SyncState struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// ======================================================================================
// Order Operations
// ======================================================================================

// UpsertOrder inserts or updates by natural key, reconciling concurrent
// updates last-writer-wins on EventSeq. A stale write (lower EventSeq than
// the stored row) is dropped silently so out-of-order stream delivery can
// never roll an order back.
func (s *Storage) UpsertOrder(order *domain.Order) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing domain.Order
		err := tx.First(&existing, "upstream_id = ?", order.UpstreamID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err == nil {
			if existing.EventSeq > order.EventSeq {
				return nil
			}
			// Keep the clustering assignment unless the caller set one.
			if order.TradeID == "" {
				order.TradeID = existing.TradeID
			}
			order.CreatedAt = existing.CreatedAt
		}

		return tx.Save(order).Error
	})
}

// GetOrder retrieves an order by upstream ID; nil if not found.
func (s *Storage) GetOrder(upstreamID string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.First(&order, "upstream_id = ?", upstreamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByGroup returns every stored order for one clustering group.
func (s *Storage) GetOrdersByGroup(underlying, expiry string) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.db.
		Where("underlying = ? AND expiry = ?", underlying, expiry).
		Order("submitted_at asc").
		Find(&orders).Error
	return orders, err
}

// GetLatestOrderForSymbol returns the most recently submitted order for a
// symbol, used to weakly link positions to trades.
func (s *Storage) GetLatestOrderForSymbol(symbol string) (*domain.Order, error) {
	var order domain.Order
	err := s.db.
		Where("symbol = ? AND trade_id <> ''", symbol).
		Order("submitted_at desc").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ======================================================================================
// Trade Operations
// ======================================================================================

// UpsertTrade creates or updates a trade by its stable identifier.
func (s *Storage) UpsertTrade(trade *domain.Trade) error {
	return s.db.Save(trade).Error
}

// GetTrade retrieves one trade; nil if not found.
func (s *Storage) GetTrade(id string) (*domain.Trade, error) {
	var trade domain.Trade
	err := s.db.First(&trade, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// GetTrades returns trades matching the filter, most recent first.
func (s *Storage) GetTrades(filter domain.TradeFilter) ([]domain.Trade, error) {
	q := s.db.Model(&domain.Trade{})
	if filter.Underlying != "" {
		q = q.Where("underlying = ?", filter.Underlying)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var trades []domain.Trade
	err := q.Order("opened_at desc").Find(&trades).Error
	return trades, err
}

// GetTradeStats aggregates summary statistics over matching trades.
func (s *Storage) GetTradeStats(filter domain.TradeFilter) (*domain.TradeStats, error) {
	// Stats ignore pagination; the filter narrows, the stats summarize.
	all := filter
	all.Limit = 0
	all.Offset = 0

	trades, err := s.GetTrades(all)
	if err != nil {
		return nil, err
	}

	stats := &domain.TradeStats{TotalTrades: len(trades)}
	for _, t := range trades {
		switch t.Status {
		case domain.TradeStatusOpen:
			stats.OpenTrades++
		case domain.TradeStatusPartiallyClosed:
			stats.PartiallyClosed++
		case domain.TradeStatusClosed:
			stats.ClosedTrades++
			if t.RealizedPL.IsPositive() {
				stats.Wins++
			} else if t.RealizedPL.IsNegative() {
				stats.Losses++
			}
			stats.TotalRealizedPL = stats.TotalRealizedPL.Add(t.RealizedPL)
		}
	}

	if stats.ClosedTrades > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.Wins)).
			Div(decimal.NewFromInt(int64(stats.ClosedTrades))).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}

	return stats, nil
}

// ======================================================================================
// Position Operations
// ======================================================================================

// ReplaceOpenPositions atomically supersedes the stored open set. Either the
// whole replacement lands or none of it does — a failed sync can never mass
// close positions that are still open upstream.
func (s *Storage) ReplaceOpenPositions(positions []domain.Position) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Position{}).
			Where("open = ?", true).
			Update("open", false).Error; err != nil {
			return err
		}

		for i := range positions {
			positions[i].Open = true
			if err := tx.Save(&positions[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOpenPositions returns the current open set.
func (s *Storage) GetOpenPositions() ([]domain.Position, error) {
	var positions []domain.Position
	err := s.db.Where("open = ?", true).Order("symbol asc").Find(&positions).Error
	return positions, err
}

// ======================================================================================
// Sync State Operations
// ======================================================================================

// SaveSyncState persists one bookkeeping value (e.g. the order watermark).
func (s *Storage) SaveSyncState(key, value string) error {
	return s.db.Save(&SyncState{Key: key, Value: value}).Error
}

// LoadSyncState returns a bookkeeping value, or "" when absent.
func (s *Storage) LoadSyncState(key string) (string, error) {
	var state SyncState
	err := s.db.First(&state, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return state.Value, nil
}
