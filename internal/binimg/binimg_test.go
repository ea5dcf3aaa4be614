package binimg_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xinfo/internal/binimg"
	"xinfo/internal/testutil/fakebin"
)

func newImage(b *fakebin.Binary) *binimg.Image {
	return binimg.New(b, zerolog.Nop())
}

func TestLocate(t *testing.T) {
	b := fakebin.New()
	addr := b.AddSymbol("kqftab", make([]byte, 160))
	img := newImage(b)

	sym, err := img.Locate("kqftab")
	require.NoError(t, err)
	assert.Equal(t, binimg.Symbol{Name: "kqftab", Addr: addr, Size: 160}, sym)
}

func TestLocateNotFound(t *testing.T) {
	img := newImage(fakebin.New())

	_, err := img.Locate("kqftab")
	require.Error(t, err)
	assert.ErrorIs(t, err, binimg.ErrNotFound)
}

func TestLocateAmbiguous(t *testing.T) {
	b := fakebin.New()
	b.AddSymbol("dup", make([]byte, 8))
	b.AddSymbol("dup", make([]byte, 16))
	img := newImage(b)

	_, err := img.Locate("dup")
	assert.ErrorIs(t, err, binimg.ErrMalformed)
}

func TestSymbolAtSharedName(t *testing.T) {
	b := fakebin.New()
	first := b.AddFunc("f1")
	second := b.AddFunc("f1")
	img := newImage(b)

	sym, err := img.SymbolAt(second)
	require.NoError(t, err)
	assert.Equal(t, binimg.Symbol{Name: "f1", Addr: second, Size: 8}, sym)
	assert.NotEqual(t, first, sym.Addr)

	_, err = img.SymbolAt(0xdead)
	assert.ErrorIs(t, err, binimg.ErrNotFound)
}

func TestResolveMany(t *testing.T) {
	b := fakebin.New()
	f1 := b.AddFunc("f1")
	f2 := b.AddFunc("f2")
	img := newImage(b)

	names, err := img.ResolveMany([]uint64{f2, f1, f2})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]string{f1: "f1", f2: "f2"}, names)
	assert.Equal(t, 1, b.FindSymbolsCalls, "addresses must be resolved in one batch")
}

func TestResolveManyMissing(t *testing.T) {
	b := fakebin.New()
	f1 := b.AddFunc("f1")
	img := newImage(b)

	names, err := img.ResolveMany([]uint64{f1, 0xdead})
	require.Error(t, err)
	assert.ErrorIs(t, err, binimg.ErrNotFound)
	assert.Contains(t, err.Error(), "0xdead")
	assert.Nil(t, names)
}

func TestResolveManyEmpty(t *testing.T) {
	b := fakebin.New()
	img := newImage(b)

	names, err := img.ResolveMany(nil)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Zero(t, b.FindSymbolsCalls)
}

func TestReadShort(t *testing.T) {
	b := fakebin.New()
	addr := b.AddSymbol("tiny", []byte{1, 2, 3, 4})
	img := newImage(b)

	_, err := img.Read(addr, 1<<20)
	assert.ErrorIs(t, err, binimg.ErrOutOfRange)
}

func TestReadNegativeLength(t *testing.T) {
	b := fakebin.New()
	addr := b.AddString("X$TABLEA1")
	img := newImage(b)

	_, err := img.Read(addr, -1)
	assert.ErrorIs(t, err, binimg.ErrOutOfRange)

	_, err = img.ReadCString(addr, -2)
	assert.ErrorIs(t, err, binimg.ErrOutOfRange)
}

func TestReadProviderFailure(t *testing.T) {
	b := fakebin.New()
	addr := b.AddSymbol("tiny", []byte{1, 2, 3, 4})
	b.ReadErr = errors.New("disk on fire")
	img := newImage(b)

	_, err := img.Read(addr, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, binimg.ErrIO)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestReadSymbol(t *testing.T) {
	b := fakebin.New()
	b.AddSymbol("blob", []byte{9, 8, 7})
	img := newImage(b)

	buf, sym, err := img.ReadSymbol("blob")
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 7}, buf)
	assert.Equal(t, uint64(3), sym.Size)
}

func TestReadCString(t *testing.T) {
	b := fakebin.New()
	addr := b.AddString("X$TABLEA1")
	img := newImage(b)

	s, err := img.ReadCString(addr, 10)
	require.NoError(t, err)
	assert.Equal(t, "X$TABLEA1", s)
}

func TestReadCStringNoTerminator(t *testing.T) {
	b := fakebin.New()
	addr := b.AddBytes([]byte("ABCDEFGHIJKLMNOP"))
	img := newImage(b)

	_, err := img.ReadCString(addr, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, binimg.ErrNoTerminator)
	assert.Contains(t, err.Error(), "ABCDE")
}

func TestReadCStringInvalidUTF8(t *testing.T) {
	b := fakebin.New()
	addr := b.AddBytes([]byte{'A', 0xff, 0xfe, 0})
	img := newImage(b)

	_, err := img.ReadCString(addr, 4)
	assert.ErrorIs(t, err, binimg.ErrMalformed)
}

func TestReadCStringMemoized(t *testing.T) {
	b := fakebin.New()
	addr := b.AddString("tablea1")
	img := newImage(b)

	first, err := img.ReadCString(addr, 8)
	require.NoError(t, err)

	b.Patch(addr, []byte("changed"))
	again, err := img.ReadCString(addr, 8)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	// A different window is a different key.
	other, err := img.ReadCString(addr, 9)
	require.NoError(t, err)
	assert.Equal(t, "changed", other)

	// A new image is a new session.
	fresh, err := newImage(b).ReadCString(addr, 8)
	require.NoError(t, err)
	assert.Equal(t, "changed", fresh)
}

func TestResolvePtrs(t *testing.T) {
	b := fakebin.New()
	f1 := b.AddFunc("f1")
	img := newImage(b)

	p := binimg.Raw(f1)
	null := binimg.Raw(0)
	require.NoError(t, img.ResolvePtrs(&p, &null, nil))

	assert.True(t, p.IsResolved())
	assert.Equal(t, "f1", p.Name)
	assert.False(t, null.IsResolved())
	assert.Equal(t, 1, b.FindSymbolsCalls)
}

func TestResolvePtrsMissing(t *testing.T) {
	img := newImage(fakebin.New())

	p := binimg.Raw(0x1234)
	err := img.ResolvePtrs(&p)
	assert.ErrorIs(t, err, binimg.ErrNotFound)
	assert.False(t, p.IsResolved())
}

func TestPtrJSON(t *testing.T) {
	in := binimg.Raw(0x401000).Resolve("kqfcpx")

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"resolved","addr":4198400,"name":"kqfcpx"}`, string(data))

	var out binimg.Ptr
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"state":"bogus"}`), &out))
}

func TestPtrDisplayName(t *testing.T) {
	assert.Equal(t, "0x10", binimg.Raw(0x10).DisplayName())
	assert.Equal(t, "kqfcpx", binimg.Raw(1).Resolve("kqfcpx").DisplayName())
	assert.Equal(t, "foo::bar()", binimg.Raw(1).Resolve("_ZN3foo3barEv").DisplayName())
}
