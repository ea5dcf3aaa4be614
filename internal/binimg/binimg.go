// Package binimg resolves symbols, byte ranges and strings of a target
// binary through pluggable providers, without loading or executing it.
package binimg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	ErrNotFound     = errors.New("binimg: not found")
	ErrMalformed    = errors.New("binimg: ambiguous or malformed")
	ErrIO           = errors.New("binimg: read failed")
	ErrOutOfRange   = errors.New("binimg: short read")
	ErrNoTerminator = errors.New("binimg: NUL terminator not found")
)

// Symbol is a named region of the target binary.
type Symbol struct {
	Name string `json:"name"`
	Addr uint64 `json:"addr"`
	Size uint64 `json:"size"`
}

// SymbolProvider answers symbol table queries.
//
// FindSymbols may return a partial map; Image enforces that every requested
// address was resolved.
type SymbolProvider interface {
	FindSymbol(name string) (addr, size uint64, err error)
	FindSymbols(addrs []uint64) (map[uint64]string, error)
	// SymbolAt returns the symbol starting exactly at addr, or an error
	// wrapping ErrNotFound.
	SymbolAt(addr uint64) (Symbol, error)
}

// ByteProvider returns the content of a virtual address range.
type ByteProvider interface {
	ReadBytes(addr uint64, n int) ([]byte, error)
	ByteOrder() binary.ByteOrder
}

// Provider is the combination most backends implement.
type Provider interface {
	SymbolProvider
	ByteProvider
}

type strKey struct {
	addr   uint64
	maxLen int
}

// Image is one decode session over a target binary. Strings resolved
// through it are memoized until the Image is discarded.
type Image struct {
	syms   SymbolProvider
	mem    ByteProvider
	logger zerolog.Logger

	mu   sync.Mutex
	strs map[strKey]string
}

// New creates an Image backed by p.
func New(p Provider, logger zerolog.Logger) *Image {
	return NewSplit(p, p, logger)
}

// NewSplit creates an Image with separate symbol and byte providers.
func NewSplit(syms SymbolProvider, mem ByteProvider, logger zerolog.Logger) *Image {
	return &Image{
		syms:   syms,
		mem:    mem,
		logger: logger.With().Str("component", "binimg").Logger(),
		strs:   make(map[strKey]string),
	}
}

// ByteOrder returns the byte order of the target binary.
func (img *Image) ByteOrder() binary.ByteOrder {
	return img.mem.ByteOrder()
}

// Locate returns the address and length of the named symbol.
func (img *Image) Locate(name string) (Symbol, error) {
	addr, size, err := img.syms.FindSymbol(name)
	if err != nil {
		return Symbol{}, fmt.Errorf("locate %s: %w", name, err)
	}
	img.logger.Debug().Str("symbol", name).Uint64("addr", addr).Uint64("size", size).Msg("located symbol")
	return Symbol{Name: name, Addr: addr, Size: size}, nil
}

// SymbolAt returns the symbol starting at addr. Unlike Locate it does not
// depend on the name being unique.
func (img *Image) SymbolAt(addr uint64) (Symbol, error) {
	sym, err := img.syms.SymbolAt(addr)
	if err != nil {
		return Symbol{}, fmt.Errorf("symbol at 0x%x: %w", addr, err)
	}
	return sym, nil
}

// ResolveMany names every address in addrs with one provider query.
// It fails with ErrNotFound if any address has no symbol; no partial map is
// returned in that case.
func (img *Image) ResolveMany(addrs []uint64) (map[uint64]string, error) {
	uniq := lo.Uniq(addrs)
	if len(uniq) == 0 {
		return map[uint64]string{}, nil
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	found, err := img.syms.FindSymbols(uniq)
	if err != nil {
		return nil, fmt.Errorf("resolve %d addresses: %w", len(uniq), err)
	}

	missing := lo.Filter(uniq, func(a uint64, _ int) bool {
		_, ok := found[a]
		return !ok
	})
	if len(missing) > 0 {
		hex := lo.Map(missing, func(a uint64, _ int) string { return fmt.Sprintf("0x%x", a) })
		return nil, fmt.Errorf("%w: no symbol at %s", ErrNotFound, strings.Join(hex, ", "))
	}

	names := make(map[uint64]string, len(uniq))
	for _, a := range uniq {
		names[a] = found[a]
	}
	img.logger.Debug().Int("addrs", len(uniq)).Msg("resolved addresses")
	return names, nil
}

// Read returns exactly n bytes starting at addr.
func (img *Image) Read(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: read 0x%x with negative length %d", ErrOutOfRange, addr, n)
	}
	buf, err := img.mem.ReadBytes(addr, n)
	if err != nil {
		if errors.Is(err, ErrOutOfRange) || errors.Is(err, ErrIO) {
			return nil, fmt.Errorf("read 0x%x+%d: %w", addr, n, err)
		}
		return nil, fmt.Errorf("%w: read 0x%x+%d: %v", ErrIO, addr, n, err)
	}
	if len(buf) < n {
		return nil, fmt.Errorf("%w: read 0x%x+%d returned %d bytes", ErrOutOfRange, addr, n, len(buf))
	}
	return buf[:n], nil
}

// ReadSymbol locates name and reads its whole region.
func (img *Image) ReadSymbol(name string) ([]byte, Symbol, error) {
	sym, err := img.Locate(name)
	if err != nil {
		return nil, Symbol{}, err
	}
	if sym.Size > math.MaxInt32 {
		return nil, sym, fmt.Errorf("%w: symbol %s size 0x%x too large", ErrMalformed, name, sym.Size)
	}
	buf, err := img.Read(sym.Addr, int(sym.Size))
	if err != nil {
		return nil, sym, fmt.Errorf("symbol %s: %w", name, err)
	}
	return buf, sym, nil
}

// ReadCString returns the NUL-terminated text at addr. It reads maxLen+1
// bytes; if no zero byte occurs in that window the error carries the text
// seen so far.
func (img *Image) ReadCString(addr uint64, maxLen int) (string, error) {
	k := strKey{addr: addr, maxLen: maxLen}
	img.mu.Lock()
	s, ok := img.strs[k]
	img.mu.Unlock()
	if ok {
		return s, nil
	}

	buf, err := img.Read(addr, maxLen+1)
	if err != nil {
		return "", fmt.Errorf("string at 0x%x: %w", addr, err)
	}
	end := bytes.IndexByte(buf, 0)
	if end < 0 {
		return "", fmt.Errorf("%w at 0x%x within %d bytes, try a larger max length; text so far %q",
			ErrNoTerminator, addr, len(buf), strings.ToValidUTF8(string(buf), "\uFFFD"))
	}
	if !utf8.Valid(buf[:end]) {
		return "", fmt.Errorf("%w: string at 0x%x is not valid UTF-8: %q", ErrMalformed, addr, buf[:end])
	}
	s = string(buf[:end])

	img.mu.Lock()
	img.strs[k] = s
	img.mu.Unlock()
	return s, nil
}
