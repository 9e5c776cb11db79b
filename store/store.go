// Package store persists extractions and their records in SQLite, with
// FTS5 search over row text and sqlite-vec search over tire dimensions.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/worksheet/record"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when no extraction matches.
var ErrNotFound = errors.New("extraction not found")

// Extraction represents a row in the extractions table.
type Extraction struct {
	ID           int64          `json:"-"`
	PublicID     string         `json:"id"`
	Filename     string         `json:"filename"`
	Format       string         `json:"format"`
	ContentHash  string         `json:"content_hash"`
	SettingsHash string         `json:"settings_hash"` // fingerprint of the parsing settings
	Pages        int            `json:"pages"`
	RecordCount  int            `json:"record_count"`
	ScrapCount   int            `json:"scrap_count"`
	Skipped      map[string]int `json:"skipped,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RecordHit is a stored record returned by a search, with the extraction
// it belongs to.
type RecordHit struct {
	record.Record
	ExtractionID string  `json:"extraction_id"`
	Filename     string  `json:"filename"`
	Score        float64 `json:"score"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including sqlite-vec and FTS5 virtual tables.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Extraction operations ---

// SaveExtraction inserts an extraction with its records in one
// transaction and fills in ID, PublicID and CreatedAt.
func (s *Store) SaveExtraction(ctx context.Context, ex *Extraction, records []record.Record) error {
	if ex.PublicID == "" {
		ex.PublicID = uuid.NewString()
	}
	skipped, err := json.Marshal(ex.Skipped)
	if err != nil {
		return fmt.Errorf("encoding skipped counts: %w", err)
	}
	ex.RecordCount = len(records)
	ex.ScrapCount = 0
	for _, r := range records {
		if r.IsScrap {
			ex.ScrapCount++
		}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO extractions (public_id, filename, format, content_hash, settings_hash, pages, record_count, scrap_count, skipped)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, ex.PublicID, ex.Filename, ex.Format, ex.ContentHash, ex.SettingsHash, ex.Pages, ex.RecordCount, ex.ScrapCount, string(skipped))
		if err != nil {
			return fmt.Errorf("inserting extraction: %w", err)
		}
		if ex.ID, err = res.LastInsertId(); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records (extraction_id, sequence, page, customer, tire_size, tread_code,
				width, patches, is_scrap, ambiguous, text)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		vec, err := tx.PrepareContext(ctx, "INSERT INTO vec_records (record_id, dims) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer vec.Close()

		for _, r := range records {
			res, err := stmt.ExecContext(ctx, ex.ID, r.Sequence, r.Page, r.Customer, r.TireSize,
				r.TreadCode, r.Width, r.Patches, r.IsScrap, r.Ambiguous, r.Text)
			if err != nil {
				return fmt.Errorf("inserting record %d: %w", r.Sequence, err)
			}
			dims, ok := DimensionVector(r.TireSize, r.Width)
			if !ok {
				continue
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := vec.ExecContext(ctx, id, serializeFloat32(dims)); err != nil {
				return fmt.Errorf("indexing record %d: %w", r.Sequence, err)
			}
		}

		return tx.QueryRowContext(ctx,
			"SELECT created_at FROM extractions WHERE id = ?", ex.ID).Scan(&ex.CreatedAt)
	})
}

const extractionColumns = `id, public_id, filename, format, content_hash, settings_hash, pages, record_count, scrap_count, skipped, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanExtraction(row scanner) (*Extraction, error) {
	ex := &Extraction{}
	var skipped sql.NullString
	if err := row.Scan(&ex.ID, &ex.PublicID, &ex.Filename, &ex.Format, &ex.ContentHash, &ex.SettingsHash,
		&ex.Pages, &ex.RecordCount, &ex.ScrapCount, &skipped, &ex.CreatedAt); err != nil {
		return nil, err
	}
	if skipped.Valid && skipped.String != "" && skipped.String != "null" {
		if err := json.Unmarshal([]byte(skipped.String), &ex.Skipped); err != nil {
			return nil, fmt.Errorf("decoding skipped counts: %w", err)
		}
	}
	return ex, nil
}

func (s *Store) getOne(ctx context.Context, where string, args ...any) (*Extraction, error) {
	ex, err := scanExtraction(s.db.QueryRowContext(ctx,
		"SELECT "+extractionColumns+" FROM extractions WHERE "+where, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ex, err
}

// GetExtraction retrieves an extraction by its public ID.
func (s *Store) GetExtraction(ctx context.Context, publicID string) (*Extraction, error) {
	return s.getOne(ctx, "public_id = ?", publicID)
}

// GetExtractionByHash returns the most recent extraction of identical
// content parsed under identical settings.
func (s *Store) GetExtractionByHash(ctx context.Context, contentHash, settingsHash string) (*Extraction, error) {
	return s.getOne(ctx, "content_hash = ? AND settings_hash = ? ORDER BY id DESC LIMIT 1", contentHash, settingsHash)
}

// ListExtractions returns all extractions, newest first.
func (s *Store) ListExtractions(ctx context.Context) ([]Extraction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+extractionColumns+" FROM extractions ORDER BY id DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		ex, err := scanExtraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ex)
	}
	return out, rows.Err()
}

// Records returns the records of an extraction in sequence order.
func (s *Store) Records(ctx context.Context, extractionID int64) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, page, customer, tire_size, tread_code, width, patches, is_scrap, ambiguous, text
		FROM records WHERE extraction_id = ? ORDER BY sequence
	`, extractionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var r record.Record
		if err := rows.Scan(&r.Sequence, &r.Page, &r.Customer, &r.TireSize, &r.TreadCode,
			&r.Width, &r.Patches, &r.IsScrap, &r.Ambiguous, &r.Text); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteExtraction removes an extraction with its records and index rows.
func (s *Store) DeleteExtraction(ctx context.Context, publicID string) error {
	ex, err := s.GetExtraction(ctx, publicID)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error { return deleteExtraction(ctx, tx, ex.ID) })
}

// DeleteExtractionsBefore removes every extraction created before cutoff
// and returns how many were deleted.
func (s *Store) DeleteExtractionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM extractions WHERE created_at < ?", cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := deleteExtraction(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func deleteExtraction(ctx context.Context, tx *sql.Tx, id int64) error {
	// vec0 tables take no part in foreign key cascades.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM vec_records WHERE record_id IN (
			SELECT id FROM records WHERE extraction_id = ?
		)`, id); err != nil {
		return err
	}
	// Deleting records fires the FTS triggers.
	if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE extraction_id = ?", id); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM extractions WHERE id = ?", id)
	return err
}

// --- Search ---

const hitColumns = `r.sequence, r.page, r.customer, r.tire_size, r.tread_code, r.width, r.patches,
	r.is_scrap, r.ambiguous, r.text, e.public_id, e.filename`

func scanHit(rows *sql.Rows, score *float64) (RecordHit, error) {
	var h RecordHit
	err := rows.Scan(score, &h.Sequence, &h.Page, &h.Customer, &h.TireSize, &h.TreadCode,
		&h.Width, &h.Patches, &h.IsScrap, &h.Ambiguous, &h.Text, &h.ExtractionID, &h.Filename)
	return h, err
}

// SearchRecords performs a full-text search over customer names and row
// text using FTS5 BM25 ranking. Every query word must match as a prefix.
func (s *Store) SearchRecords(ctx context.Context, query string, limit int) ([]RecordHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.rank, `+hitColumns+`
		FROM records_fts f
		JOIN records r ON r.id = f.rowid
		JOIN extractions e ON e.id = r.extraction_id
		WHERE records_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordHit
	for rows.Next() {
		var rank float64
		h, err := scanHit(rows, &rank)
		if err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better), convert to positive score
		h.Score = -rank
		out = append(out, h)
	}
	return out, rows.Err()
}

// SimilarRecords returns the k stored records whose dimensions are closest
// to the given tire size and tread width.
func (s *Store) SimilarRecords(ctx context.Context, tireSize, width string, k int) ([]RecordHit, error) {
	dims, ok := DimensionVector(tireSize, width)
	if !ok {
		return nil, fmt.Errorf("invalid dimensions %q / %q", tireSize, width)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.distance, `+hitColumns+`
		FROM vec_records v
		JOIN records r ON r.id = v.record_id
		JOIN extractions e ON e.id = r.extraction_id
		WHERE v.dims MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(dims), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordHit
	for rows.Next() {
		var distance float64
		h, err := scanHit(rows, &distance)
		if err != nil {
			return nil, err
		}
		h.Score = 1 / (1 + distance)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ftsQuery quotes each word of q as an FTS5 prefix term.
func ftsQuery(q string) string {
	var terms []string
	for _, w := range strings.Fields(q) {
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}

// --- Stats ---

// DBStats holds row counts for health reporting.
type DBStats struct {
	Extractions int `json:"extractions"`
	Records     int `json:"records"`
	Indexed     int `json:"indexed"`
}

// Stats returns counts of extractions, records and indexed vectors.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM extractions", &stats.Extractions},
		{"SELECT COUNT(*) FROM records", &stats.Records},
		{"SELECT COUNT(*) FROM vec_records", &stats.Indexed},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
