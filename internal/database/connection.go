package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultDSN keeps the ledger in memory; it disappears with the process.
const DefaultDSN = "file::memory:?cache=shared"

// Open connects to the ledger database and creates its tables.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}

	// Validate connectivity.
	conn, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sqlite handle: %w", err)
	}
	// One writer at a time, and an in-memory database lives only as long as
	// its connection.
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := CreateTables(db); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	conn, err := db.DB()
	if err != nil {
		return err
	}
	return conn.Close()
}
