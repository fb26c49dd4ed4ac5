// Package cache persists corpus artifacts in a self-describing container:
// a fixed 32-byte header followed by a gob payload, optionally zstd-compressed.
package cache

import "errors"

const (
	// Magic identifies conceptrank artifact files (ASCII: "CRNK").
	Magic = 0x43524E4B
	// FormatVersion is the container layout version.
	FormatVersion = 1

	headerSize = 32
)

// Kind identifies which artifact a file holds.
type Kind uint8

const (
	KindAdjacency Kind = 1
	KindIDMap     Kind = 2
	KindLabels    Kind = 3
	KindMatrix    Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindAdjacency:
		return "adjacency"
	case KindIDMap:
		return "idmap"
	case KindLabels:
		return "labels"
	case KindMatrix:
		return "matrix"
	default:
		return "unknown"
	}
}

// FileName returns the artifact's file name inside the cache directory.
func (k Kind) FileName() string {
	return k.String() + ".bin"
}

// Compression selects the payload codec.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

// ParseCompression maps the config value to a Compression.
func ParseCompression(s string) Compression {
	if s == "none" {
		return CompressionNone
	}
	return CompressionZstd
}

var (
	ErrInvalidMagic     = errors.New("invalid magic number")
	ErrKindMismatch     = errors.New("artifact kind mismatch")
	ErrChecksumMismatch = errors.New("payload checksum mismatch")
	ErrTruncated        = errors.New("truncated payload")
)

// VersionError reports a format or schema version other than the expected one.
type VersionError struct {
	Field string
	Want  uint32
	Got   uint32
}

func (e *VersionError) Error() string {
	return e.Field + " version mismatch"
}

// header is the on-disk layout, little endian.
type header struct {
	Magic         uint32
	FormatVersion uint32
	Kind          Kind
	Compression   Compression
	_             [2]byte
	Schema        uint32
	PayloadLen    uint64
	Checksum      uint32 // CRC32 (IEEE) of the stored payload bytes
	_             [4]byte
}
