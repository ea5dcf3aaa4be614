// Package fakebin is an in-memory target binary for tests. It implements
// binimg.Provider over a flat little-endian arena.
package fakebin

import (
	"encoding/binary"
	"fmt"

	"xinfo/internal/binimg"
)

// DefaultBase is the virtual address of the first arena byte.
const DefaultBase = 0x400000

// tailPad keeps string reads near the end of the arena in range.
const tailPad = 64

// Binary is a fake binary built up by tests.
type Binary struct {
	base uint64
	mem  []byte
	syms []binimg.Symbol

	// ReadErr, when set, is returned by every ReadBytes call.
	ReadErr error
	// FindSymbolsCalls counts batched address lookups.
	FindSymbolsCalls int
}

// New returns an empty binary at DefaultBase.
func New() *Binary {
	return &Binary{base: DefaultBase}
}

func (b *Binary) alloc(n int) uint64 {
	for len(b.mem)%8 != 0 {
		b.mem = append(b.mem, 0)
	}
	addr := b.base + uint64(len(b.mem))
	b.mem = append(b.mem, make([]byte, n)...)
	return addr
}

// AddString places s followed by a NUL and returns its address.
func (b *Binary) AddString(s string) uint64 {
	addr := b.alloc(len(s) + 1)
	copy(b.mem[addr-b.base:], s)
	return addr
}

// AddBytes places data without a symbol and returns its address.
func (b *Binary) AddBytes(data []byte) uint64 {
	addr := b.alloc(len(data))
	copy(b.mem[addr-b.base:], data)
	return addr
}

// AddSymbol places data and registers a symbol covering it.
func (b *Binary) AddSymbol(name string, data []byte) uint64 {
	addr := b.AddBytes(data)
	b.syms = append(b.syms, binimg.Symbol{Name: name, Addr: addr, Size: uint64(len(data))})
	return addr
}

// AddFunc places a tiny x86-64 function body (push rbp; mov rbp,rsp; pop rbp; ret).
func (b *Binary) AddFunc(name string) uint64 {
	return b.AddSymbol(name, []byte{0x55, 0x48, 0x89, 0xe5, 0x5d, 0xc3, 0x90, 0x90})
}

// Patch overwrites bytes at addr.
func (b *Binary) Patch(addr uint64, data []byte) {
	copy(b.mem[addr-b.base:], data)
}

// FindSymbol implements binimg.SymbolProvider.
func (b *Binary) FindSymbol(name string) (uint64, uint64, error) {
	var hits []binimg.Symbol
	for _, s := range b.syms {
		if s.Name == name {
			hits = append(hits, s)
		}
	}
	switch len(hits) {
	case 0:
		return 0, 0, fmt.Errorf("%w: symbol %s", binimg.ErrNotFound, name)
	case 1:
		return hits[0].Addr, hits[0].Size, nil
	default:
		return 0, 0, fmt.Errorf("%w: %d symbols named %s", binimg.ErrMalformed, len(hits), name)
	}
}

// FindSymbols implements binimg.SymbolProvider. Unknown addresses are left out.
func (b *Binary) FindSymbols(addrs []uint64) (map[uint64]string, error) {
	b.FindSymbolsCalls++
	out := make(map[uint64]string, len(addrs))
	for _, a := range addrs {
		for _, s := range b.syms {
			if s.Addr == a {
				out[a] = s.Name
				break
			}
		}
	}
	return out, nil
}

// SymbolAt implements binimg.SymbolProvider.
func (b *Binary) SymbolAt(addr uint64) (binimg.Symbol, error) {
	for _, s := range b.syms {
		if s.Addr == addr {
			return s, nil
		}
	}
	return binimg.Symbol{}, fmt.Errorf("%w: no symbol at 0x%x", binimg.ErrNotFound, addr)
}

// ReadBytes implements binimg.ByteProvider. Reads past the arena are short.
func (b *Binary) ReadBytes(addr uint64, n int) ([]byte, error) {
	if b.ReadErr != nil {
		return nil, b.ReadErr
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", binimg.ErrOutOfRange, n)
	}
	end := b.base + uint64(len(b.mem)) + tailPad
	if addr < b.base || addr >= end {
		return nil, fmt.Errorf("%w: address 0x%x outside arena", binimg.ErrOutOfRange, addr)
	}
	avail := int(end - addr)
	if n > avail {
		n = avail
	}
	out := make([]byte, n)
	off := addr - b.base
	if off < uint64(len(b.mem)) {
		copy(out, b.mem[off:])
	}
	return out, nil
}

// ByteOrder implements binimg.ByteProvider.
func (b *Binary) ByteOrder() binary.ByteOrder { return binary.LittleEndian }

// Record is a fixed-size record under construction.
type Record []byte

// NewRecord returns a zeroed record of size n.
func NewRecord(n int) Record { return make(Record, n) }

func (r Record) U8(off int, v uint8) Record {
	r[off] = v
	return r
}

func (r Record) U16(off int, v uint16) Record {
	binary.LittleEndian.PutUint16(r[off:], v)
	return r
}

func (r Record) U32(off int, v uint32) Record {
	binary.LittleEndian.PutUint32(r[off:], v)
	return r
}

func (r Record) U64(off int, v uint64) Record {
	binary.LittleEndian.PutUint64(r[off:], v)
	return r
}

// Concat joins records back to back.
func Concat(recs ...Record) []byte {
	var out []byte
	for _, r := range recs {
		out = append(out, r...)
	}
	return out
}
