// Package errors provides centralized error handling with category metadata
// for the analysis pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryValidation       ErrorCategory = "validation"
	CategoryFileIO           ErrorCategory = "file-io"
	CategoryFileParsing      ErrorCategory = "file-parsing"
	CategoryConfiguration    ErrorCategory = "configuration"
	CategoryDatabase         ErrorCategory = "database"
	CategoryInsufficientData ErrorCategory = "insufficient-data"
	CategoryFitFailure       ErrorCategory = "fit-failure"
	CategoryNameResolution   ErrorCategory = "name-resolution"
	CategoryProcessing       ErrorCategory = "processing"
	CategoryCancellation     ErrorCategory = "cancellation"
	CategoryGeneric          ErrorCategory = "generic"
)

// Sentinel errors used across the pipeline. Callers match on these with
// errors.Is to distinguish "skip this group" outcomes from real failures.
var (
	// ErrInsufficientData marks a group with too few observations for a
	// statistical step. Skipped, never fatal.
	ErrInsufficientData = stderrors.New("insufficient data")

	// ErrFitFailure marks a numerically ill-conditioned smoothing or
	// decomposition fit. Recorded per group, treated as no detection.
	ErrFitFailure = stderrors.New("fit failure")

	// ErrUnresolvedName marks a scientific name with no canonical match in
	// the trait/synonym reference tables.
	ErrUnresolvedName = stderrors.New("unresolved scientific name")
)

// EnhancedError wraps an error with component, category and context metadata.
type EnhancedError struct {
	Err       error          // Original error
	Component string         // Component where error occurred
	Category  ErrorCategory  // Error category for grouping
	Context   map[string]any // Additional context data
	Timestamp time.Time      // When the error occurred
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is implements error type checking: two enhanced errors match when their
// categories match; otherwise matching falls through to the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetContext returns a copy of the context map for safe iteration.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	ctxCopy := make(map[string]any, len(ee.Context))
	maps.Copy(ctxCopy, ee.Context)
	return ctxCopy
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New creates a new error builder from an existing error
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err, category: CategoryGeneric}
}

// Newf creates a new error builder from a format string
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component where the error occurred
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds a key-value pair to the error context
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// GroupContext adds the (species, country) key identifying a series group.
func (eb *ErrorBuilder) GroupContext(species, country string) *ErrorBuilder {
	return eb.Context("species", species).Context("country", country)
}

// FileContext adds file-related context
func (eb *ErrorBuilder) FileContext(filePath string, line int) *ErrorBuilder {
	eb.Context("file_path", filePath)
	if line > 0 {
		eb.Context("line", line)
	}
	return eb
}

// Build creates the final enhanced error
func (eb *ErrorBuilder) Build() *EnhancedError {
	return &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error wrapping the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}
