// Package store contains the GORM-backed SQLite models and the key-value
// contract used by the payment core.
//
// Database Structure (database file: phasma.db):
//
//	databases/
//	└── phasma.db
//	    └── kv_entries
//	        ├── phasma:ghost_payments
//	        ├── phasma:auth_token
//	        ├── phasma:wallet_address
//	        ├── phasma:transactions
//	        ├── phasma:total_cashback
//	        └── phasma:total_saved_gas
package store

import "time"

// KVEntry is one namespaced value. Collections are stored as a single JSON
// document under one key and rewritten as a whole.
type KVEntry struct {
	Key       string    `gorm:"column:entry_key;primaryKey"` // Namespaced key, e.g. "phasma:transactions"
	Value     string    `gorm:"type:text;not null"`          // Raw value, usually JSON
	UpdatedAt time.Time // Last write
}

// TableName overrides the default table name
func (KVEntry) TableName() string {
	return "kv_entries"
}
