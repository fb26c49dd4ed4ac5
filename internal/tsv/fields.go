package tsv

import (
	"fmt"
	"strconv"
)

// ParseID parses a non-negative decimal id. Signs, spaces and
// hexadecimal forms are rejected.
func ParseID(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("non-numeric id %q", s)
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id %q out of range", s)
	}
	return id, nil
}

// MinFields returns an error when fields has fewer than n entries.
func MinFields(fields []string, n int) error {
	if len(fields) < n {
		return fmt.Errorf("expected at least %d fields, got %d", n, len(fields))
	}
	return nil
}
