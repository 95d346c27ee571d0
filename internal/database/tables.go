package database

import (
	"fmt"

	"gorm.io/gorm"
)

// CreateTables creates all ledger tables.
func CreateTables(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("create tables: db is nil")
	}
	if err := db.AutoMigrate(&ChatRecord{}, &MemberRecord{}); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	return nil
}
