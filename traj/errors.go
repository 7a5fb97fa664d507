package traj

import "fmt"

// MalformedTrackError reports a raw track that cannot be normalized: a
// required field is absent from the header or a timestamp cannot be parsed.
// It is scoped to one track; the rest of the run continues.
type MalformedTrackError struct {
	Field  string
	Reason string
}

func (e *MalformedTrackError) Error() string {
	return fmt.Sprintf("malformed track: field %q: %s", e.Field, e.Reason)
}

// ConversionError wraps a supplier, normalizer or cache-decode failure for
// one identity. Conversion errors are collected into the run summary, never
// fatal.
type ConversionError struct {
	ID  ID
	Err error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert track %s: %v", e.ID, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// CacheIOError reports an unreadable or unwritable cache entry. Read
// failures fall back to a fresh conversion; write failures are logged and
// the converted artifact stays usable for the current pass.
type CacheIOError struct {
	Op   string // "read", "write" or "create"
	Path string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }

// ConfigError reports an invalid batching, schema or worker parameter.
// Configuration errors are fatal at construction and never surface at batch
// time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}
