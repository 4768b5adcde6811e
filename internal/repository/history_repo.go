// Package repository implements persistence for playsink's resume history.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/playsink/playsink/internal/models"
	"github.com/playsink/playsink/internal/state"
)

// HistoryRepo persists the whole history mapping as one JSON blob in the
// kv_store table under a configurable storage key. Writes are
// last-writer-wins; updates are monotonic in recency per URL, so that is
// acceptable.
type HistoryRepo struct {
	db         *gorm.DB
	storageKey string
}

var _ state.HistoryRepository = (*HistoryRepo)(nil)

// NewHistoryRepository creates a HistoryRepo using the given storage key.
func NewHistoryRepository(db *gorm.DB, storageKey string) *HistoryRepo {
	return &HistoryRepo{db: db, storageKey: storageKey}
}

// LoadHistory reads the persisted history blob. A missing row yields an
// empty mapping, not an error.
func (r *HistoryRepo) LoadHistory(ctx context.Context) (state.History, error) {
	var entry models.KVEntry
	err := r.db.WithContext(ctx).First(&entry, "key = ?", r.storageKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return state.History{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	var persisted state.PersistedState
	if err := json.Unmarshal(entry.Value, &persisted); err != nil {
		return nil, fmt.Errorf("decoding history blob: %w", err)
	}
	if persisted.History == nil {
		return state.History{}, nil
	}
	return persisted.History, nil
}

// SaveHistory writes the whole mapping back under the storage key.
func (r *HistoryRepo) SaveHistory(ctx context.Context, h state.History) error {
	value, err := json.Marshal(state.PersistedState{History: h})
	if err != nil {
		return fmt.Errorf("encoding history blob: %w", err)
	}

	entry := models.KVEntry{
		Key:       r.storageKey,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}
