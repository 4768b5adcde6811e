// Package models defines the persisted data types for playsink.
package models

import "time"

// KVEntry is one row of the kv_store table: an opaque JSON value under a
// string key. The resume-history blob lives here under the configured
// storage key.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;size:255" json:"key"`
	Value     []byte    `gorm:"type:blob" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the GORM default.
func (KVEntry) TableName() string {
	return "kv_store"
}
