package errors

import (
	stderrors "errors"
	"fmt"
)

// RankError is the structured error type for conceptrank.
// It carries enough context for logging, CLI output and MCP responses.
type RankError struct {
	// Code is the unique error code (e.g., "ERR_205_CORRUPT_CACHE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *RankError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RankError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, &RankError{Code: ...}) works.
func (e *RankError) Is(target error) bool {
	if t, ok := target.(*RankError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *RankError) WithDetail(key, value string) *RankError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *RankError) WithSuggestion(suggestion string) *RankError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RankError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RankError {
	return &RankError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RankError from an existing error.
func Wrap(code string, err error) *RankError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RankError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// MissingInput reports that neither a cache nor a source file exists.
func MissingInput(artifact, sourcePath string) *RankError {
	return New(ErrCodeMissingInput, fmt.Sprintf("no %s cache and no source at %s", artifact, sourcePath), nil).
		WithDetail("artifact", artifact).
		WithDetail("source", sourcePath).
		WithSuggestion("check corpus.edges_path and corpus.labels_path in the config")
}

// CorruptCache reports an unreadable cache file.
func CorruptCache(path string, cause error) *RankError {
	return New(ErrCodeCorruptCache, fmt.Sprintf("cache %s is corrupt", path), cause).
		WithDetail("path", path).
		WithSuggestion("run 'conceptrank build --force' to rebuild from source")
}

// CacheVersionMismatch reports a cache written by an incompatible version.
func CacheVersionMismatch(path string, want, got uint32) *RankError {
	return New(ErrCodeCacheVersion, fmt.Sprintf("cache %s has version %d, expected %d", path, got, want), nil).
		WithDetail("path", path).
		WithSuggestion("run 'conceptrank build --force' to rebuild from source")
}

// MalformedLine reports an input record that failed validation.
func MalformedLine(source string, line int, reason string) *RankError {
	return New(ErrCodeMalformedLine, fmt.Sprintf("%s:%d: %s", source, line, reason), nil).
		WithDetail("source", source).
		WithDetail("line", fmt.Sprint(line))
}

// InvalidParameter rejects a query before any matrix work.
func InvalidParameter(message string) *RankError {
	return New(ErrCodeInvalidParameter, message, nil)
}

// UnknownSeed rejects a seed that is not a graph concept.
func UnknownSeed(externalID int64) *RankError {
	return New(ErrCodeUnknownSeed, fmt.Sprintf("seed %d is not a concept in the graph", externalID), nil).
		WithDetail("seed", fmt.Sprint(externalID)).
		WithSuggestion("use 'conceptrank lookup' to find valid concept ids")
}

// DegenerateRow reports a transition matrix row that sums to zero.
func DegenerateRow(row int) *RankError {
	return New(ErrCodeDegenerateRow, fmt.Sprintf("transition row %d has no outgoing weight", row), nil).
		WithDetail("row", fmt.Sprint(row))
}

// NoStationaryEigenvalue reports that no eigenvalue matched 1 within tolerance.
func NoStationaryEigenvalue(message string, cause error) *RankError {
	return New(ErrCodeNoStationary, message, cause).
		WithSuggestion("increase solver.max_restarts or relax solver.tolerance")
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RankError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var re *RankError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the build phase.
func IsFatal(err error) bool {
	var re *RankError
	if stderrors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// HasCode reports whether any RankError in err's chain carries code.
func HasCode(err error, code string) bool {
	return stderrors.Is(err, &RankError{Code: code})
}

// GetCode extracts the error code from the first RankError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var re *RankError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from a RankError.
func GetCategory(err error) Category {
	var re *RankError
	if stderrors.As(err, &re) {
		return re.Category
	}
	return ""
}
