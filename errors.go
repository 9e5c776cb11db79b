package worksheet

import "errors"

var (
	// ErrExtractionNotFound is returned when an extraction ID does not exist.
	ErrExtractionNotFound = errors.New("worksheet: extraction not found")

	// ErrUnsupportedFormat is returned for unrecognized document formats.
	ErrUnsupportedFormat = errors.New("worksheet: unsupported document format")

	// ErrDecodeFailed is returned when a document or one of its pages
	// cannot be decoded. No partial result is produced.
	ErrDecodeFailed = errors.New("worksheet: decoding failed")

	// ErrEmptyDocument is returned for empty input or a document without pages.
	ErrEmptyDocument = errors.New("worksheet: document is empty")

	// ErrStoreDisabled is returned by history operations when the engine
	// runs without persistence.
	ErrStoreDisabled = errors.New("worksheet: extraction store disabled")

	// ErrInvalidQuery is returned for malformed search parameters.
	ErrInvalidQuery = errors.New("worksheet: invalid query")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("worksheet: invalid configuration")
)
