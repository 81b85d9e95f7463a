// Package search keeps an in-memory SQLite index of message bodies fed from
// the bus. It lives only as long as the process.
package search

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a private in-memory SQLite database.
type DB struct {
	*sql.DB
}

// Open creates a fresh in-memory database. Each call gets its own database.
func Open() (*DB, error) {
	dsn := fmt.Sprintf("file:chatsync-%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// The database disappears when its last connection closes.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}
