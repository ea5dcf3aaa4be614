package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Index int    `json:"index"`
	Name  string `json:"nam"`
	Flags []int  `json:"flg,omitempty"`
}

var sample = []entry{
	{Index: 1, Name: "X$TABLEA1", Flags: []int{4, 5}},
	{Index: 2, Name: "X$TABLEB1"},
}

func newStore(t *testing.T, fs afero.Fs) *Store {
	t.Helper()
	s, err := Open(fs, "/cache", "ns", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func counter(calls *int) func() ([]entry, error) {
	return func() ([]entry, error) {
		*calls++
		return sample, nil
	}
}

func TestLoadComputesWhenEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newStore(t, fs)
	calls := 0

	got, err := Load(s, "kqftab", false, counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1, calls)

	ok, err := afero.Exists(fs, "/cache/ns/kqftab.data")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadUsesStoredValue(t *testing.T) {
	s := newStore(t, afero.NewMemMapFs())
	calls := 0

	for range 3 {
		got, err := Load(s, "kqftab", false, counter(&calls))
		require.NoError(t, err)
		assert.Equal(t, sample, got)
	}
	assert.Equal(t, 1, calls)
}

func TestLoadRefreshAlwaysComputes(t *testing.T) {
	s := newStore(t, afero.NewMemMapFs())
	calls := 0

	for i := range 2 {
		got, err := Load(s, "kqftab", true, counter(&calls))
		require.NoError(t, err)
		assert.Equal(t, sample, got)
		assert.Equal(t, i+1, calls)
	}
}

func TestLoadRefreshOverwrites(t *testing.T) {
	s := newStore(t, afero.NewMemMapFs())

	_, err := Load(s, "kqftab", false, func() ([]entry, error) { return sample[:1], nil })
	require.NoError(t, err)
	_, err = Load(s, "kqftab", true, func() ([]entry, error) { return sample, nil })
	require.NoError(t, err)

	got, err := Load(s, "kqftab", false, func() ([]entry, error) {
		t.Fatal("compute called for a stored dataset")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestLoadRoundTripAcrossStores(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(newStore(t, fs), "kqftab", false, func() ([]entry, error) { return sample, nil })
	require.NoError(t, err)

	got, err := Load(newStore(t, fs), "kqftab", false, func() ([]entry, error) {
		return nil, errors.New("should not be called")
	})
	require.NoError(t, err)
	assert.Equal(t, sample, got)
}

func TestLoadComputeErrorNotCached(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := newStore(t, fs)
	boom := errors.New("decode failed")

	_, err := Load(s, "kqftap", false, func() ([]entry, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	ok, err := afero.Exists(fs, "/cache/ns/kqftap.data")
	require.NoError(t, err)
	assert.False(t, ok)

	calls := 0
	_, err = Load(s, "kqftap", false, counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestLoadCorruptEntryRecomputed(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/cache/ns", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/cache/ns/kqfcop.data", []byte("garbage"), 0o644))
	s := newStore(t, fs)
	calls := 0

	got, err := Load(s, "kqfcop", false, counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, sample, got)
	assert.Equal(t, 1, calls)

	// The rewritten entry is valid.
	_, err = Load(s, "kqfcop", false, counter(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFSBackendRejectsPaths(t *testing.T) {
	b := NewFSBackend(afero.NewMemMapFs(), "/cache")

	for _, key := range []string{"", "../escape.data", "a/b.data", ".hidden"} {
		err := b.Write(key, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestFSBackendWriteLeavesNoTemp(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := NewFSBackend(fs, "/cache")

	require.NoError(t, b.Write("kqftab.data", []byte("one")))
	require.NoError(t, b.Write("kqftab.data", []byte("two")))

	data, err := b.Read("kqftab.data")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), data)

	names, err := afero.Glob(fs, filepath.Join("/cache", "*"))
	require.NoError(t, err)
	assert.Equal(t, []string{"/cache/kqftab.data"}, names)
}

func TestNamespace(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/u01/oracle/bin", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/u01/oracle/bin/oracle", []byte("elf"), 0o755))

	a, err := Namespace(fs, "/u01/oracle/bin/oracle", 19)
	require.NoError(t, err)
	assert.Len(t, a, 16)

	same, err := Namespace(fs, "/u01/oracle/bin/oracle", 19)
	require.NoError(t, err)
	assert.Equal(t, a, same)

	other, err := Namespace(fs, "/u01/oracle/bin/oracle", 23)
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	later := time.Now().Add(time.Hour)
	require.NoError(t, fs.Chtimes("/u01/oracle/bin/oracle", later, later))
	touched, err := Namespace(fs, "/u01/oracle/bin/oracle", 19)
	require.NoError(t, err)
	assert.NotEqual(t, a, touched)

	_, err = Namespace(fs, "/missing", 19)
	assert.Error(t, err)
}
