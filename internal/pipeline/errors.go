package pipeline

import (
	"errors"
	"fmt"

	"github.com/ironsheep/outfit-tools-mcp/internal/geometry"
)

// Kind classifies a pipeline failure.
type Kind string

// Failure kinds. They are stable strings reported to MCP clients.
const (
	KindImageLoad        Kind = "image_load"
	KindInvalidDimension Kind = "invalid_dimension"
	KindDetector         Kind = "detector"
	KindSegmenter        Kind = "segmenter"
	KindInvalidInput     Kind = "invalid_input"
	KindStore            Kind = "store"
)

// Error is the error type returned by Run and Process.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted cause. Use %w to keep the cause
// reachable through errors.Is.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain. Errors that are
// not pipeline errors are classified by their sentinel where possible and
// default to KindInvalidInput.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, geometry.ErrInvalidDimension) {
		return KindInvalidDimension
	}
	return KindInvalidInput
}
