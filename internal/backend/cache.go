package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dzatona/opentimestamps-client/internal/logging"
)

// Schema for the header cache. Headers are immutable once a block is
// buried, so entries never expire.
const cacheSchema = `
CREATE TABLE IF NOT EXISTS headers (
    height       INTEGER PRIMARY KEY,
    merkle_root  BLOB NOT NULL,
    time_unix    INTEGER NOT NULL
);
`

// Cache wraps a Source with a SQLite header cache so repeated
// verifications of the same proofs stop hitting the network.
type Cache struct {
	db  *sql.DB
	src Source
}

// OpenCache opens or creates the cache database at path, delegating
// misses to src.
func OpenCache(path string, src Source) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply cache schema: %w", err)
	}
	return &Cache{db: db, src: src}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Block answers from the cache when possible. Only definitive answers
// are cached; ErrBlockNotFound can mean an unsynced node, so it is
// asked again next time.
func (c *Cache) Block(ctx context.Context, height uint64) (*BlockInfo, error) {
	var root []byte
	var timeUnix int64
	err := c.db.QueryRowContext(ctx,
		`SELECT merkle_root, time_unix FROM headers WHERE height = ?`, height,
	).Scan(&root, &timeUnix)
	switch {
	case err == nil:
		return &BlockInfo{MerkleRoot: root, Time: time.Unix(timeUnix, 0).UTC()}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("query header cache: %w", err)
	}

	info, err := c.src.Block(ctx, height)
	if err != nil {
		return nil, err
	}

	// A failed cache write costs a refetch next time, not the answer
	// we already have.
	if _, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO headers (height, merkle_root, time_unix) VALUES (?, ?, ?)`,
		height, info.MerkleRoot, info.Time.Unix(),
	); err != nil {
		logging.Warn("header cache write failed", "height", height, "error", err)
	}
	return info, nil
}
