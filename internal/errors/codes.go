// Package errors provides structured error handling for conceptrank.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Input and cache errors
//   - 3XX: Persistence sink errors
//   - 4XX: Validation errors
//   - 5XX: Numerical and internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates input file and cache errors.
	CategoryIO Category = "IO"
	// CategorySink indicates query log and queue errors.
	CategorySink Category = "SINK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryNumerical indicates failures of the matrix pipeline.
	CategoryNumerical Category = "NUMERICAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the build phase.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the current query only.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Input and cache errors (200-299)
	ErrCodeMissingInput    = "ERR_201_MISSING_INPUT"
	ErrCodeFilePermission  = "ERR_202_FILE_PERMISSION"
	ErrCodeCacheWrite      = "ERR_203_CACHE_WRITE"
	ErrCodeBuildLocked     = "ERR_204_BUILD_LOCKED"
	ErrCodeCorruptCache    = "ERR_205_CORRUPT_CACHE"
	ErrCodeInconsistent    = "ERR_206_INCONSISTENT_CACHE"
	ErrCodeCacheVersion    = "ERR_207_CACHE_VERSION"

	// Sink errors (300-399)
	ErrCodeSinkUnavailable = "ERR_301_SINK_UNAVAILABLE"
	ErrCodeSinkWrite       = "ERR_302_SINK_WRITE"

	// Validation errors (400-499)
	ErrCodeMalformedLine    = "ERR_401_MALFORMED_LINE"
	ErrCodeInvalidParameter = "ERR_402_INVALID_PARAMETER"
	ErrCodeUnknownSeed      = "ERR_403_UNKNOWN_SEED"

	// Numerical and internal errors (500-599)
	ErrCodeDegenerateRow          = "ERR_501_DEGENERATE_ROW"
	ErrCodeNoStationary           = "ERR_502_NO_STATIONARY"
	ErrCodeDegenerateDistribution = "ERR_503_DEGENERATE_DISTRIBUTION"
	ErrCodeInternal               = "ERR_504_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryNumerical
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategorySink
	case '4':
		return CategoryValidation
	default:
		return CategoryNumerical
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeMissingInput, ErrCodeCorruptCache, ErrCodeCacheVersion,
		ErrCodeInconsistent, ErrCodeDegenerateRow, ErrCodeCacheWrite:
		return SeverityFatal
	case ErrCodeMalformedLine, ErrCodeDegenerateDistribution:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeSinkUnavailable, ErrCodeSinkWrite, ErrCodeBuildLocked:
		return true
	default:
		return false
	}
}
