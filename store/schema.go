package store

import "fmt"

// dimensionSize is the length of a record's dimension vector: section
// width, aspect ratio, rim and tread width.
const dimensionSize = 4

// schemaSQL returns the DDL for all tables.
func schemaSQL() string {
	return fmt.Sprintf(`
-- One row per processed document, deduplicated by content hash
CREATE TABLE IF NOT EXISTS extractions (
    id INTEGER PRIMARY KEY,
    public_id TEXT NOT NULL UNIQUE,
    filename TEXT NOT NULL,
    format TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    pages INTEGER NOT NULL,
    record_count INTEGER NOT NULL DEFAULT 0,
    scrap_count INTEGER NOT NULL DEFAULT 0,
    skipped JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Extracted production records in sequence order
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY,
    extraction_id INTEGER NOT NULL REFERENCES extractions(id) ON DELETE CASCADE,
    sequence INTEGER NOT NULL,
    page INTEGER NOT NULL,
    customer TEXT NOT NULL,
    tire_size TEXT NOT NULL,
    tread_code TEXT NOT NULL,
    width TEXT NOT NULL,
    patches TEXT NOT NULL,
    is_scrap INTEGER NOT NULL DEFAULT 0,
    ambiguous INTEGER NOT NULL DEFAULT 0,
    text TEXT NOT NULL,
    UNIQUE(extraction_id, sequence)
);

-- Tire dimension vectors via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_records USING vec0(
    record_id INTEGER PRIMARY KEY,
    dims float[%d]
);

-- Full-text search over customer and row text
CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
    customer,
    text,
    content='records',
    content_rowid='id',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER IF NOT EXISTS records_ai AFTER INSERT ON records BEGIN
    INSERT INTO records_fts(rowid, customer, text) VALUES (new.id, new.customer, new.text);
END;
CREATE TRIGGER IF NOT EXISTS records_ad AFTER DELETE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, customer, text) VALUES ('delete', old.id, old.customer, old.text);
END;
CREATE TRIGGER IF NOT EXISTS records_au AFTER UPDATE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, customer, text) VALUES ('delete', old.id, old.customer, old.text);
    INSERT INTO records_fts(rowid, customer, text) VALUES (new.id, new.customer, new.text);
END;

CREATE INDEX IF NOT EXISTS idx_records_extraction ON records(extraction_id);
CREATE INDEX IF NOT EXISTS idx_extractions_hash ON extractions(content_hash);
`, dimensionSize)
}
