package extract

import "errors"

var (
	// ErrExtractorRequired indicates no extraction capability was supplied.
	ErrExtractorRequired = errors.New("extraction capability is required")

	// ErrInvalidSchema indicates the schema tree produced no extraction
	// units.
	ErrInvalidSchema = errors.New("schema yields no extraction units")
)
