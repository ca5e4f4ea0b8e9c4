package moq

import (
	"errors"
	"fmt"
)

var (
	ErrStreamType = errors.New("moq: unsupported stream type")
	ErrExtensions = errors.New("moq: malformed extension headers")
)

// ParseError indicates a failure to parse a data stream field. It wraps
// the underlying I/O or format error and records which field was being
// parsed.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("moq: parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
