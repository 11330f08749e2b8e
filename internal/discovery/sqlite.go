package discovery

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"replbatch/internal/band"

	_ "modernc.org/sqlite"
)

// DefaultQuery lists objects still missing a replica on the destination
// tier. The schema is owned by the discovery side; any query returning
// (size, path) rows works.
const DefaultQuery = `SELECT size, path FROM objects WHERE replicated = 0 ORDER BY path`

// SQLSource reads (size, path) pairs from a SQLite catalog database.
type SQLSource struct {
	db    *sql.DB
	query string
}

// NewSQLSource opens the catalog database. An empty query selects
// DefaultQuery.
func NewSQLSource(dbPath, query string) (*SQLSource, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	if query == "" {
		query = DefaultQuery
	}
	return &SQLSource{db: db, query: query}, nil
}

// Items runs the discovery query and materializes every row.
func (s *SQLSource) Items(ctx context.Context) ([]band.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("discovery query failed: %w", err)
	}
	defer rows.Close()

	var items []band.WorkItem
	for rows.Next() {
		var it band.WorkItem
		if err := rows.Scan(&it.Size, &it.Path); err != nil {
			return nil, fmt.Errorf("failed to scan discovery row: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("discovery query failed: %w", err)
	}

	return items, nil
}

// Close closes the database connection.
func (s *SQLSource) Close() error {
	return s.db.Close()
}
