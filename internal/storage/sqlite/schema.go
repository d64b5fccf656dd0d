// ABOUTME: SQLite database schema for pipeline persistence
// ABOUTME: Creates blob, vector, and table-memory tables with their indexes
package sqlite

// SchemaVersion is recorded in PRAGMA user_version once Schema is applied
const SchemaVersion = 2

// upgrades run before Schema when a database is older than the version that keys them.
// Vectors are derived data, so v2 rebuilds the table with per-item keys.
var upgrades = map[int]string{
	2: `DROP TABLE IF EXISTS vectors;`,
}

// Schema contains all SQL statements for database initialization
const Schema = `
-- Opaque JSON documents: per-conversation metadata, settings, summary cache
CREATE TABLE IF NOT EXISTS blobs (
    key TEXT PRIMARY KEY,
    data BLOB NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Embedded items for the local similarity backend
CREATE TABLE IF NOT EXISTS vectors (
    id TEXT PRIMARY KEY,
    collection TEXT NOT NULL,
    item_key TEXT NOT NULL,
    hash TEXT NOT NULL,
    text TEXT NOT NULL,
    metadata TEXT,
    source TEXT,
    vector BLOB NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (collection, item_key)
);

CREATE INDEX IF NOT EXISTS idx_vectors_collection ON vectors(collection);

-- Rows exposed to prompts through table memory
CREATE TABLE IF NOT EXISTS table_rows (
    collection TEXT NOT NULL,
    row_key TEXT NOT NULL,
    grp TEXT,
    text TEXT NOT NULL,
    metadata TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (collection, row_key)
);
`
