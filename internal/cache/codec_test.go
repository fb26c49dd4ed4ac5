package cache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
)

type sample struct {
	IDs    []int64
	Labels map[int]string
}

func newSample() sample {
	return sample{
		IDs:    []int64{10, 20, 30},
		Labels: map[int]string{0: "Alpha", 2: "Gamma"},
	}
}

func TestEncodeDecode_RoundTripsBothCompressions(t *testing.T) {
	for _, comp := range []Compression{CompressionNone, CompressionZstd} {
		// Given: an encoded artifact
		var buf bytes.Buffer
		require.NoError(t, Encode(&buf, KindLabels, 3, comp, newSample()))

		// When: decoding it
		var got sample
		require.NoError(t, Decode(&buf, KindLabels, 3, &got))

		// Then: the value is unchanged
		assert.Equal(t, newSample(), got)
	}
}

func TestDecode_RejectsWrongKindAndSchema(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, KindIDMap, 1, CompressionZstd, newSample()))
	data := buf.Bytes()

	var got sample
	err := Decode(bytes.NewReader(data), KindMatrix, 1, &got)
	assert.ErrorIs(t, err, ErrKindMismatch)

	err = Decode(bytes.NewReader(data), KindIDMap, 2, &got)
	var verr *VersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "schema", verr.Field)
	assert.Equal(t, uint32(2), verr.Want)
	assert.Equal(t, uint32(1), verr.Got)
}

func TestDecode_DetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, KindAdjacency, 1, CompressionNone, newSample()))
	good := buf.Bytes()

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"bad magic", func(b []byte) []byte { b[0] ^= 0xFF; return b }, ErrInvalidMagic},
		{"flipped payload byte", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }, ErrChecksumMismatch},
		{"truncated payload", func(b []byte) []byte { return b[:len(b)-3] }, ErrTruncated},
		{"truncated header", func(b []byte) []byte { return b[:10] }, ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			var got sample
			err := Decode(bytes.NewReader(data), KindAdjacency, 1, &got)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSaveLoad_AtomicAndTyped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, KindLabels.FileName())

	// Given: a saved artifact
	require.NoError(t, Save(path, KindLabels, 1, CompressionZstd, newSample()))
	assert.True(t, Exists(path))

	// Then: no temp files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// And: it loads back
	var got sample
	require.NoError(t, Load(path, KindLabels, 1, &got))
	assert.Equal(t, newSample(), got)

	// And: a schema bump is a version mismatch
	err = Load(path, KindLabels, 2, &got)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeCacheVersion))

	// And: garbage is a corrupt cache
	require.NoError(t, os.WriteFile(path, []byte("garbage that is not an artifact at all"), 0o644))
	err = Load(path, KindLabels, 1, &got)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeCorruptCache))
}

func TestLoad_MissingFileIsNotExist(t *testing.T) {
	var got sample
	err := Load(filepath.Join(t.TempDir(), "nope.bin"), KindMatrix, 1, &got)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestKind_Names(t *testing.T) {
	assert.Equal(t, "matrix.bin", KindMatrix.FileName())
	assert.Equal(t, "unknown", Kind(99).String())
	assert.Equal(t, CompressionNone, ParseCompression("none"))
	assert.Equal(t, CompressionZstd, ParseCompression("zstd"))
}

func TestBuildLock_ExcludesSecondHolder(t *testing.T) {
	dir := t.TempDir()

	// Given: one holder
	first := NewBuildLock(dir)
	require.NoError(t, first.Lock(context.Background()))

	// When: a second lock tries without blocking
	second := NewBuildLock(dir)
	ok, err := second.TryLock()

	// Then: it is refused until the first releases
	require.NoError(t, err)
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err = second.Lock(ctx)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeBuildLocked))

	require.NoError(t, first.Unlock())
	ok, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, second.Unlock())
	assert.NoError(t, second.Unlock())
}

func TestLoadOrBuild(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "edges.tsv")
	path := filepath.Join(dir, KindAdjacency.FileName())

	var loads, builds int
	load := func() error {
		loads++
		var s sample
		return Load(path, KindAdjacency, 1, &s)
	}
	build := func() error {
		builds++
		return Save(path, KindAdjacency, 1, CompressionZstd, newSample())
	}
	a := Artifact{Kind: KindAdjacency, Path: path, SourcePath: source}

	// Given: neither cache nor source
	_, err := LoadOrBuild(a, false, nil, load, build)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeMissingInput))

	// When: the source appears, the artifact is built
	require.NoError(t, os.WriteFile(source, []byte("1\t2\n"), 0o644))
	built, err := LoadOrBuild(a, false, nil, load, build)
	require.NoError(t, err)
	assert.True(t, built)

	// Then: the next call loads from cache
	built, err = LoadOrBuild(a, false, nil, load, build)
	require.NoError(t, err)
	assert.False(t, built)
	assert.Equal(t, 1, builds)

	// And: a corrupt cache is rebuilt from source
	require.NoError(t, os.WriteFile(path, []byte("not a cache file, just some bytes......"), 0o644))
	built, err = LoadOrBuild(a, false, nil, load, build)
	require.NoError(t, err)
	assert.True(t, built)

	// And: without a source a corrupt cache is fatal
	require.NoError(t, os.Remove(source))
	require.NoError(t, os.WriteFile(path, []byte("not a cache file, just some bytes......"), 0o644))
	_, err = LoadOrBuild(a, false, nil, load, build)
	assert.True(t, crerrors.IsFatal(err))
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeCorruptCache))

	// And: force without a source is a missing input
	_, err = LoadOrBuild(a, true, nil, load, build)
	assert.True(t, crerrors.HasCode(err, crerrors.ErrCodeMissingInput))
}
