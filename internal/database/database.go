package database

import (
	"fmt"
	"log"
	"net/url"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers "sqlite"
)

// maxOpenConns bounds the pool. Writers are serialized above the driver by the
// store's write mutex; the extra connections only serve concurrent WAL readers.
const maxOpenConns = 4

// Open opens (creating if needed) the single-file SQLite database at path.
// Pragmas are passed through the DSN so every pooled connection gets them.
func Open(path string, busyTimeoutMS int) (*sqlx.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sqlx.Connect("sqlite", dsn(path, busyTimeoutMS))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)

	log.Printf("[Database] Opened %s (busy_timeout=%dms)", path, busyTimeoutMS)
	return db, nil
}

func dsn(path string, busyTimeoutMS int) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return path + "?" + q.Encode()
}
