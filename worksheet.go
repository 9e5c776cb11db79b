// Package worksheet extracts production records from retread workshop
// worksheets and keeps a searchable history of past extractions.
package worksheet

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/brunobiangulo/worksheet/layout"
	"github.com/brunobiangulo/worksheet/parser"
	"github.com/brunobiangulo/worksheet/pipeline"
	"github.com/brunobiangulo/worksheet/record"
	"github.com/brunobiangulo/worksheet/store"
)

// Engine is the main entry point for worksheet extraction.
type Engine interface {
	// Extract decodes a document, runs the extraction pipeline and stores
	// the result. Identical content already in the store is returned
	// without reprocessing unless WithForce is given.
	Extract(ctx context.Context, filename string, data []byte, opts ...ExtractOption) (*Extraction, error)

	// ExtractFile reads path and calls Extract.
	ExtractFile(ctx context.Context, path string, opts ...ExtractOption) (*Extraction, error)

	// ListExtractions returns stored extractions, newest first.
	ListExtractions(ctx context.Context) ([]Summary, error)

	// GetExtraction reloads a stored extraction and recomputes its groups.
	GetExtraction(ctx context.Context, id string) (*Extraction, error)

	// DeleteExtraction removes an extraction and its records.
	DeleteExtraction(ctx context.Context, id string) error

	// PurgeBefore removes extractions created before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)

	// SearchRecords finds stored records by customer or row text.
	SearchRecords(ctx context.Context, query string, limit int) ([]store.RecordHit, error)

	// SimilarRecords finds stored records with the nearest tire dimensions.
	SimilarRecords(ctx context.Context, tireSize, width string, k int) ([]store.RecordHit, error)

	// Stats reports store row counts.
	Stats(ctx context.Context) (*store.DBStats, error)

	// Close cleanly shuts down the engine.
	Close() error
}

// Extraction is a processed document with its records and summaries.
type Extraction struct {
	ID          string    `json:"id,omitempty"`
	Filename    string    `json:"filename"`
	Format      string    `json:"format"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	// Reused is set when the result came from the store instead of a new run.
	Reused bool `json:"reused,omitempty"`

	pipeline.Result
}

// Summary describes a stored extraction without its records.
type Summary = store.Extraction

// ExtractOption configures extraction behavior.
type ExtractOption func(*extractOptions)

type extractOptions struct {
	force  bool
	format string
}

// WithForce reprocesses the document even if identical content was stored.
func WithForce() ExtractOption {
	return func(o *extractOptions) { o.force = true }
}

// WithFormat overrides format detection.
func WithFormat(format string) ExtractOption {
	return func(o *extractOptions) { o.format = format }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store // nil when DisableStore is set
	decoders *parser.Registry
	pipe     *pipeline.Pipeline
	settings string // fingerprint of the settings that shape records
}

// New creates a worksheet engine with the given configuration.
func New(cfg Config) (Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rp, err := record.NewParser(cfg.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	settings, err := settingsFingerprint(rp.Policy(), cfg.RowTolerance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var opts []pipeline.Option
	if cfg.Registerer != nil {
		opts = append(opts, pipeline.WithMetrics(pipeline.NewMetrics(cfg.Registerer)))
	}

	e := &engine{
		cfg:      cfg,
		decoders: parser.NewRegistry(),
		pipe:     pipeline.New(layout.NewClusterer(cfg.RowTolerance), rp, opts...),
		settings: settings,
	}

	if !cfg.DisableStore {
		s, err := store.New(cfg.resolveDBPath())
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// settingsFingerprint hashes everything that changes the records produced
// from the same bytes, so stored results are only reused under equal
// settings.
func settingsFingerprint(policy record.Policy, rowTolerance float64) (string, error) {
	b, err := json.Marshal(struct {
		Policy       record.Policy `json:"policy"`
		RowTolerance float64       `json:"row_tolerance"`
	}{policy, rowTolerance})
	if err != nil {
		return "", fmt.Errorf("encoding settings: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func (e *engine) Extract(ctx context.Context, filename string, data []byte, opts ...ExtractOption) (*Extraction, error) {
	options := &extractOptions{}
	for _, o := range opts {
		o(options)
	}

	filename = filepath.Base(filename)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, filename)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if e.store != nil && !options.force {
		existing, err := e.store.GetExtractionByHash(ctx, hash, e.settings)
		switch {
		case err == nil:
			slog.Info("extract: content unchanged, reusing stored result",
				"file", filename, "id", existing.PublicID)
			ex, err := e.load(ctx, existing)
			if err != nil {
				return nil, err
			}
			ex.Reused = true
			return ex, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("looking up content hash: %w", err)
		}
	}

	format, dec, err := e.decoderFor(filename, data, options.format)
	if err != nil {
		return nil, err
	}

	slog.Info("extract: decoding document", "file", filename, "format", format, "bytes", len(data))
	start := time.Now()

	doc, err := dec.Decode(ctx, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	res, err := e.pipe.Run(ctx, doc)
	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrNoPages):
		return nil, fmt.Errorf("%w: %s has no pages", ErrEmptyDocument, filename)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	slog.Info("extract: complete",
		"file", filename, "pages", res.Pages, "records", len(res.Records),
		"elapsed", time.Since(start).Round(time.Millisecond))

	ex := &Extraction{
		Filename:    filename,
		Format:      format,
		ContentHash: hash,
		Result:      *res,
	}

	if e.store != nil {
		skipped := make(map[string]int, len(res.Skipped))
		for why, n := range res.Skipped {
			skipped[string(why)] = n
		}
		row := &store.Extraction{
			Filename:     filename,
			Format:       format,
			ContentHash:  hash,
			SettingsHash: e.settings,
			Pages:        res.Pages,
			Skipped:      skipped,
		}
		if err := e.store.SaveExtraction(ctx, row, res.Records); err != nil {
			return nil, fmt.Errorf("saving extraction: %w", err)
		}
		ex.ID = row.PublicID
		ex.CreatedAt = row.CreatedAt
	}
	return ex, nil
}

// decoderFor picks the format: explicit, then file extension, then
// content sniffing.
func (e *engine) decoderFor(filename string, data []byte, explicit string) (string, parser.Decoder, error) {
	candidates := []string{explicit}
	if explicit == "" {
		candidates = []string{parser.FormatFromName(filename), parser.Detect(data)}
	}
	for _, format := range candidates {
		if format == "" {
			continue
		}
		if dec, err := e.decoders.Get(format); err == nil {
			return format, dec, nil
		}
	}
	name := explicit
	if name == "" {
		name = parser.FormatFromName(filename)
	}
	return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

func (e *engine) ExtractFile(ctx context.Context, path string, opts ...ExtractOption) (*Extraction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return e.Extract(ctx, path, data, opts...)
}

func (e *engine) ListExtractions(ctx context.Context) ([]Summary, error) {
	if e.store == nil {
		return []Summary{}, nil
	}
	list, err := e.store.ListExtractions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing extractions: %w", err)
	}
	if list == nil {
		list = []Summary{}
	}
	return list, nil
}

func (e *engine) GetExtraction(ctx context.Context, id string) (*Extraction, error) {
	if e.store == nil {
		return nil, ErrExtractionNotFound
	}
	row, err := e.store.GetExtraction(ctx, id)
	if err != nil {
		return nil, e.notFound(err)
	}
	return e.load(ctx, row)
}

func (e *engine) load(ctx context.Context, row *store.Extraction) (*Extraction, error) {
	records, err := e.store.Records(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	res := pipeline.Assemble(records)
	res.Pages = row.Pages
	if len(row.Skipped) > 0 {
		res.Skipped = make(map[record.Rejection]int, len(row.Skipped))
		for why, n := range row.Skipped {
			res.Skipped[record.Rejection(why)] = n
		}
	}
	return &Extraction{
		ID:          row.PublicID,
		Filename:    row.Filename,
		Format:      row.Format,
		ContentHash: row.ContentHash,
		CreatedAt:   row.CreatedAt,
		Result:      *res,
	}, nil
}

func (e *engine) DeleteExtraction(ctx context.Context, id string) error {
	if e.store == nil {
		return ErrExtractionNotFound
	}
	if err := e.store.DeleteExtraction(ctx, id); err != nil {
		return e.notFound(err)
	}
	slog.Info("extract: deleted extraction", "id", id)
	return nil
}

func (e *engine) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if e.store == nil {
		return 0, nil
	}
	n, err := e.store.DeleteExtractionsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging extractions: %w", err)
	}
	if n > 0 {
		slog.Info("extract: purged old extractions", "count", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

func (e *engine) SearchRecords(ctx context.Context, query string, limit int) ([]store.RecordHit, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	if limit <= 0 {
		limit = 20
	}
	hits, err := e.store.SearchRecords(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching records: %w", err)
	}
	return hits, nil
}

func (e *engine) SimilarRecords(ctx context.Context, tireSize, width string, k int) ([]store.RecordHit, error) {
	if e.store == nil {
		return nil, ErrStoreDisabled
	}
	if k <= 0 {
		k = 10
	}
	if _, ok := store.DimensionVector(tireSize, width); !ok {
		return nil, fmt.Errorf("%w: tire size %q and width %q must be numeric", ErrInvalidQuery, tireSize, width)
	}
	hits, err := e.store.SimilarRecords(ctx, tireSize, width, k)
	if err != nil {
		return nil, fmt.Errorf("finding similar records: %w", err)
	}
	return hits, nil
}

func (e *engine) Stats(ctx context.Context) (*store.DBStats, error) {
	if e.store == nil {
		return &store.DBStats{}, nil
	}
	return e.store.Stats(ctx)
}

func (e *engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func (e *engine) notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrExtractionNotFound
	}
	return err
}
