// Package database is the durable archive for decisions and paper
// positions. The in-memory ring stores are the source of truth during a
// run; the archive is what survives restarts for later analysis.
package database

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Scotty108/cascadian/types"
)

type Database struct {
	db *gorm.DB
}

// DecisionRecord archives one consensus evaluation.
type DecisionRecord struct {
	ID             string `gorm:"primaryKey"`
	Timestamp      time.Time
	SourceWallet   string `gorm:"index"`
	MatchedWallets string // comma-joined
	ConditionID    string `gorm:"index"`
	MarketID       string
	Side           string
	Outcome        string
	Price          decimal.Decimal `gorm:"type:decimal(10,6)"`
	Size           decimal.Decimal `gorm:"type:decimal(20,6)"`
	Status         string          `gorm:"index"`
	Reason         string
	TxHash         string
	DryRun         bool
	CreatedAt      time.Time
}

// PositionRecord archives a paper position.
type PositionRecord struct {
	ID            string `gorm:"primaryKey"`
	DecisionID    string `gorm:"index"`
	SourceEventID string
	SourceWallet  string `gorm:"index"`
	ConditionID   string `gorm:"index"`
	MarketID      string
	Side          string
	Outcome       string
	EntryPrice    decimal.Decimal `gorm:"type:decimal(10,6)"`
	Size          decimal.Decimal `gorm:"type:decimal(20,6)"`
	ExitPrice     decimal.Decimal `gorm:"type:decimal(10,6)"`
	RealizedPnL   decimal.Decimal `gorm:"type:decimal(20,6)"`
	Status        string          `gorm:"index"`
	ExitReason    string
	OpenedAt      time.Time
	ClosedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// New opens the archive. A postgres:// DSN connects to PostgreSQL;
// anything else is a SQLite file path.
func New(dbPath string) (*Database, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dbPath, "postgres://") || strings.HasPrefix(dbPath, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Archive connected (PostgreSQL)")
	} else {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dbPath).Msg("Archive initialized (SQLite)")
	}

	if err := db.AutoMigrate(&DecisionRecord{}, &PositionRecord{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

// SaveDecision archives a decision. Implements copytrade.Archiver.
func (d *Database) SaveDecision(dec types.Decision) error {
	rec := DecisionRecord{
		ID:             dec.ID,
		Timestamp:      dec.Timestamp,
		SourceWallet:   dec.SourceWallet,
		MatchedWallets: strings.Join(dec.MatchedWallets, ","),
		ConditionID:    dec.ConditionID,
		MarketID:       dec.MarketID,
		Side:           string(dec.Side),
		Outcome:        dec.Outcome,
		Price:          dec.Price,
		Size:           dec.Size,
		Status:         string(dec.Status),
		Reason:         dec.Reason,
		TxHash:         dec.TxHash,
		DryRun:         dec.DryRun,
	}
	return d.db.Create(&rec).Error
}

// SavePosition archives or updates a paper position.
func (d *Database) SavePosition(p types.PaperPosition) error {
	rec := PositionRecord{
		ID:            p.ID,
		DecisionID:    p.DecisionID,
		SourceEventID: p.SourceEventID,
		SourceWallet:  p.SourceWallet,
		ConditionID:   p.ConditionID,
		MarketID:      p.MarketID,
		Side:          string(p.Side),
		Outcome:       p.Outcome,
		EntryPrice:    p.EntryPrice,
		Size:          p.Size,
		ExitPrice:     p.ExitPrice,
		RealizedPnL:   p.RealizedPnL,
		Status:        string(p.Status),
		ExitReason:    p.ExitReason,
		OpenedAt:      p.OpenedAt,
	}
	if !p.ClosedAt.IsZero() {
		closed := p.ClosedAt
		rec.ClosedAt = &closed
	}
	return d.db.Save(&rec).Error
}

// RecentDecisions returns the latest archived decisions.
func (d *Database) RecentDecisions(limit int) ([]DecisionRecord, error) {
	var out []DecisionRecord
	err := d.db.Order("timestamp DESC").Limit(limit).Find(&out).Error
	return out, err
}

// ClosedPositions returns archived terminal positions.
func (d *Database) ClosedPositions(limit int) ([]PositionRecord, error) {
	var out []PositionRecord
	err := d.db.Where("status <> ?", string(types.PositionOpen)).
		Order("closed_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Close releases the underlying connection.
func (d *Database) Close() {
	if sqlDB, err := d.db.DB(); err == nil {
		sqlDB.Close()
	}
}
