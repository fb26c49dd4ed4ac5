package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
)

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

// EncodeAll and DecodeAll are safe for concurrent use.
func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

// Encode writes v to w as an artifact of the given kind and schema.
func Encode(w io.Writer, kind Kind, schema uint32, comp Compression, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}

	payload := buf.Bytes()
	if comp == CompressionZstd {
		enc, _, err := codecs()
		if err != nil {
			return fmt.Errorf("init zstd: %w", err)
		}
		payload = enc.EncodeAll(payload, nil)
	}

	h := header{
		Magic:         Magic,
		FormatVersion: FormatVersion,
		Kind:          kind,
		Compression:   comp,
		Schema:        schema,
		PayloadLen:    uint64(len(payload)),
		Checksum:      crc32.ChecksumIEEE(payload),
	}
	if err := binary.Write(w, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// Decode reads an artifact of the given kind and schema from r into v.
// Version differences are reported as *VersionError; any other problem with
// the container or payload is one of the Err* sentinels or a gob error.
func Decode(r io.Reader, kind Kind, schema uint32, v any) error {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("read header: %w", ErrTruncated)
	}
	if h.Magic != Magic {
		return ErrInvalidMagic
	}
	if h.FormatVersion != FormatVersion {
		return &VersionError{Field: "format", Want: FormatVersion, Got: h.FormatVersion}
	}
	if h.Kind != kind {
		return fmt.Errorf("%w: want %s, got %s", ErrKindMismatch, kind, h.Kind)
	}
	if h.Schema != schema {
		return &VersionError{Field: "schema", Want: schema, Got: h.Schema}
	}

	payload, err := io.ReadAll(io.LimitReader(r, int64(h.PayloadLen)))
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	if uint64(len(payload)) != h.PayloadLen {
		return ErrTruncated
	}
	if crc32.ChecksumIEEE(payload) != h.Checksum {
		return ErrChecksumMismatch
	}

	switch h.Compression {
	case CompressionNone:
	case CompressionZstd:
		_, dec, err := codecs()
		if err != nil {
			return fmt.Errorf("init zstd: %w", err)
		}
		if payload, err = dec.DecodeAll(payload, nil); err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
	default:
		return fmt.Errorf("unknown compression %d", h.Compression)
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

// Save writes v to path atomically: a temp file in the same directory is
// synced and renamed over path.
func Save(path string, kind Kind, schema uint32, comp Compression, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return crerrors.New(crerrors.ErrCodeCacheWrite, "failed to create cache directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return crerrors.New(crerrors.ErrCodeCacheWrite, "failed to create temp cache file", err)
	}
	tmpPath := tmp.Name()

	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return crerrors.New(crerrors.ErrCodeCacheWrite, fmt.Sprintf("failed to write %s", path), err)
	}

	if err := Encode(tmp, kind, schema, comp, v); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return crerrors.New(crerrors.ErrCodeCacheWrite, fmt.Sprintf("failed to write %s", path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return crerrors.New(crerrors.ErrCodeCacheWrite, fmt.Sprintf("failed to rename %s", path), err)
	}
	return nil
}

// Load reads the artifact at path into v.
// A missing file is returned as an error matching os.ErrNotExist.
// Version differences map to CacheVersionMismatch, everything else to CorruptCache.
func Load(path string, kind Kind, schema uint32, v any) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return err
		}
		return crerrors.CorruptCache(path, err)
	}
	defer func() { _ = f.Close() }()

	if err := Decode(f, kind, schema, v); err != nil {
		var verr *VersionError
		if errors.As(err, &verr) {
			return crerrors.CacheVersionMismatch(path, verr.Want, verr.Got).WithDetail("field", verr.Field)
		}
		return crerrors.CorruptCache(path, err)
	}
	return nil
}

// Exists reports whether an artifact file is present.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
