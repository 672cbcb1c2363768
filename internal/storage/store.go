// Package storage provides durable adapters behind meds.Persistence.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/dosetrack/internal/config"
	"github.com/gmsas95/dosetrack/internal/meds"
)

// Store persists medication state in SQLite and the dose history in BadgerDB.
// History entries are write-once: Badger keys are ordered by commit time, so
// a reverse scan yields the ledger newest first.
type Store struct {
	db     *gorm.DB
	badger *badger.DB
}

type medicationRow struct {
	ID             string `gorm:"primaryKey"`
	Name           string
	Dosage         string
	Frequency      string
	Form           string
	NextDoseAt     time.Time
	RemainingUnits int
	TotalUnits     int
	Position       int `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (medicationRow) TableName() string { return "medications" }

// New opens both databases and migrates the schema.
func New(cfg *config.StorageConfig) (*Store, error) {
	sqliteDB, err := sql.Open("sqlite", cfg.SQLitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&medicationRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	badgerOpts := badger.DefaultOptions(cfg.BadgerPath).WithLogger(nil)
	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db, badger: badgerDB}, nil
}

// Close closes both databases.
func (s *Store) Close() error {
	var firstErr error
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.badger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Load returns all medications in their display order.
func (s *Store) Load() ([]meds.Medication, error) {
	var rows []medicationRow
	if err := s.db.Order("position ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load medications: %w", err)
	}

	out := make([]meds.Medication, 0, len(rows))
	for _, r := range rows {
		out = append(out, meds.Medication{
			ID:             r.ID,
			Name:           r.Name,
			Dosage:         r.Dosage,
			Frequency:      meds.Frequency(r.Frequency),
			Form:           meds.Form(r.Form),
			NextDoseAt:     r.NextDoseAt,
			RemainingUnits: r.RemainingUnits,
			TotalUnits:     r.TotalUnits,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
		})
	}
	return out, nil
}

// Save replaces the stored collection with the given one, preserving order.
func (s *Store) Save(list []meds.Medication) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&medicationRow{}).Error; err != nil {
			return fmt.Errorf("failed to clear medications: %w", err)
		}
		for i, m := range list {
			row := medicationRow{
				ID:             m.ID,
				Name:           m.Name,
				Dosage:         m.Dosage,
				Frequency:      string(m.Frequency),
				Form:           string(m.Form),
				NextDoseAt:     m.NextDoseAt,
				RemainingUnits: m.RemainingUnits,
				TotalUnits:     m.TotalUnits,
				Position:       i,
				CreatedAt:      m.CreatedAt,
				UpdatedAt:      m.UpdatedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("failed to save medication %s: %w", m.ID, err)
			}
		}
		return nil
	})
}

func historyKey(e meds.DoseLogEntry) []byte {
	// Nanosecond commit time first so lexicographic order is commit order;
	// the entry id breaks ties.
	return []byte(fmt.Sprintf("dose!%020d!%s", e.LoggedAt.UnixNano(), e.ID))
}

// AppendHistory writes one committed ledger entry. Entries are never
// rewritten or deleted.
func (s *Store) AppendHistory(entry meds.DoseLogEntry) error {
	val, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(entry), val)
	})
}

// LoadHistory returns the full dose history, newest first.
func (s *Store) LoadHistory() ([]meds.DoseLogEntry, error) {
	var out []meds.DoseLogEntry
	err := s.badger.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the highest possible key in the
		// prefix range.
		for it.Seek([]byte("dose!\xff")); it.ValidForPrefix([]byte("dose!")); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry meds.DoseLogEntry
				if err := json.Unmarshal(val, &entry); err != nil {
					return fmt.Errorf("failed to decode ledger entry: %w", err)
				}
				out = append(out, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
