package registry

import "errors"

var (
	// ErrKindMismatch is returned when a metric name is re-registered with a
	// different kind. This is a setup bug in the producer and should surface
	// at startup, not at first record.
	ErrKindMismatch = errors.New("metric already registered with a different kind")

	// ErrSchemaMismatch is returned when a metric name is re-registered with
	// a different label schema or histogram bucket layout.
	ErrSchemaMismatch = errors.New("metric already registered with a different schema")

	// ErrInvalidDelta is returned for a negative counter increment. The
	// counter value is left unchanged.
	ErrInvalidDelta = errors.New("counter delta must be non-negative")

	// ErrLabelArity is returned when the number of label values does not
	// match the schema declared at creation.
	ErrLabelArity = errors.New("label values do not match declared schema")

	// ErrUnknownKind is returned for a kind outside counter/gauge/histogram.
	ErrUnknownKind = errors.New("unknown metric kind")
)
