// Package elfx provides ELF symbol and virtual-address helpers for the
// database engine executable.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"xinfo/internal/binimg"
)

var (
	ErrNotELF             = errors.New("elfx: not an ELF file")
	ErrNot64Bit           = errors.New("elfx: not 64-bit ELF")
	ErrUnsupportedMachine = errors.New("elfx: unsupported machine (want x86-64 or ARM64)")
	ErrNotExecutable      = errors.New("elfx: not an executable or shared object")
	ErrNoSymbols          = errors.New("elfx: no symbol table")
)

// File wraps a debug/elf.File with the lookups the decoders need.
type File struct {
	ELF  *elf.File
	raw  io.ReaderAt
	file *os.File
	size int64

	once   sync.Once
	idxErr error
	byName map[string][]elf.Symbol
	byAddr map[uint64]elf.Symbol
}

// Open opens an ELF file and validates it is a 64-bit x86-64 or ARM64
// executable or shared object.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}

	fail := func(err error) (*File, error) {
		ef.Close()
		f.Close()
		return nil, err
	}
	if ef.Class != elf.ELFCLASS64 {
		return fail(ErrNot64Bit)
	}
	if ef.Machine != elf.EM_X86_64 && ef.Machine != elf.EM_AARCH64 {
		return fail(fmt.Errorf("%w: %s", ErrUnsupportedMachine, ef.Machine))
	}
	if ef.Type != elf.ET_EXEC && ef.Type != elf.ET_DYN {
		return fail(fmt.Errorf("%w: %s", ErrNotExecutable, ef.Type))
	}

	return &File{ELF: ef, raw: f, file: f, size: info.Size()}, nil
}

// Close releases resources.
func (f *File) Close() error {
	err := f.ELF.Close()
	if cerr := f.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// Machine returns the ELF machine type.
func (f *File) Machine() elf.Machine { return f.ELF.Machine }

// ByteOrder returns the ELF byte order.
func (f *File) ByteOrder() binary.ByteOrder {
	return f.ELF.ByteOrder
}

// symbolRank orders aliases at one address: named data and code first,
// then global over local binding.
func symbolRank(s elf.Symbol) int {
	r := 0
	switch elf.ST_TYPE(s.Info) {
	case elf.STT_FUNC, elf.STT_OBJECT:
		r += 2
	}
	if elf.ST_BIND(s.Info) == elf.STB_GLOBAL {
		r++
	}
	return r
}

func (f *File) index() error {
	f.once.Do(func() {
		var all []elf.Symbol
		syms, err := f.ELF.Symbols()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			f.idxErr = fmt.Errorf("elfx: symtab: %w", err)
			return
		}
		all = append(all, syms...)
		dyn, err := f.ELF.DynamicSymbols()
		if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
			f.idxErr = fmt.Errorf("elfx: dynsym: %w", err)
			return
		}
		all = append(all, dyn...)
		if len(all) == 0 {
			f.idxErr = ErrNoSymbols
			return
		}

		f.byName = make(map[string][]elf.Symbol, len(all))
		f.byAddr = make(map[uint64]elf.Symbol, len(all))
		for _, s := range all {
			switch elf.ST_TYPE(s.Info) {
			case elf.STT_SECTION, elf.STT_FILE:
				continue
			}
			if s.Name == "" || s.Section == elf.SHN_UNDEF {
				continue
			}
			f.byName[s.Name] = append(f.byName[s.Name], s)
			if cur, ok := f.byAddr[s.Value]; !ok || symbolRank(s) > symbolRank(cur) {
				f.byAddr[s.Value] = s
			}
		}
	})
	return f.idxErr
}

// Symbol looks up a symbol by exact name in .symtab and .dynsym.
// Returns the symbol's virtual address and size. A name bound to more than
// one distinct (address, size) pair is reported as malformed.
func (f *File) Symbol(name string) (addr, size uint64, err error) {
	if err := f.index(); err != nil {
		return 0, 0, err
	}
	hits := f.byName[name]
	if len(hits) == 0 {
		return 0, 0, fmt.Errorf("%w: elfx: symbol %s", binimg.ErrNotFound, name)
	}
	first := hits[0]
	for _, s := range hits[1:] {
		if s.Value != first.Value || s.Size != first.Size {
			return 0, 0, fmt.Errorf("%w: elfx: symbol %s defined at 0x%x and 0x%x",
				binimg.ErrMalformed, name, first.Value, s.Value)
		}
	}
	return first.Value, first.Size, nil
}

// FindSymbol implements binimg.SymbolProvider.
func (f *File) FindSymbol(name string) (uint64, uint64, error) {
	return f.Symbol(name)
}

// FindSymbols implements binimg.SymbolProvider. Addresses without a symbol
// starting exactly there are left out of the result.
func (f *File) FindSymbols(addrs []uint64) (map[uint64]string, error) {
	if err := f.index(); err != nil {
		return nil, err
	}
	out := make(map[uint64]string, len(addrs))
	for _, a := range addrs {
		if s, ok := f.byAddr[a]; ok {
			out[a] = s.Name
		}
	}
	return out, nil
}

// SymbolAt implements binimg.SymbolProvider. When several symbols start at
// addr the typed global one wins.
func (f *File) SymbolAt(addr uint64) (binimg.Symbol, error) {
	if err := f.index(); err != nil {
		return binimg.Symbol{}, err
	}
	s, ok := f.byAddr[addr]
	if !ok {
		return binimg.Symbol{}, fmt.Errorf("%w: elfx: no symbol at 0x%x", binimg.ErrNotFound, addr)
	}
	return binimg.Symbol{Name: s.Name, Addr: s.Value, Size: s.Size}, nil
}

// segment returns the PT_LOAD segment covering va.
func (f *File) segment(va uint64) (*elf.Prog, error) {
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if va >= p.Vaddr && va < p.Vaddr+p.Memsz {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: elfx: no PT_LOAD segment covers VA 0x%x", binimg.ErrOutOfRange, va)
}

// VAToFileOffset converts a virtual address to a file offset using PT_LOAD segments.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	p, err := f.segment(va)
	if err != nil {
		return 0, err
	}
	offset := va - p.Vaddr + p.Off
	if offset >= uint64(f.size) {
		return 0, fmt.Errorf("%w: elfx: VA 0x%x maps to offset 0x%x beyond file size 0x%x",
			binimg.ErrOutOfRange, va, offset, f.size)
	}
	return offset, nil
}

// ReadBytes returns exactly n bytes starting at va. The range must lie in
// the file-backed part of one PT_LOAD segment.
func (f *File) ReadBytes(va uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: elfx: negative read length %d at VA 0x%x", binimg.ErrOutOfRange, n, va)
	}
	p, err := f.segment(va)
	if err != nil {
		return nil, err
	}
	if va+uint64(n) > p.Vaddr+p.Filesz {
		return nil, fmt.Errorf("%w: elfx: VA 0x%x+%d runs past file-backed end 0x%x of segment",
			binimg.ErrOutOfRange, va, n, p.Vaddr+p.Filesz)
	}
	off, err := f.VAToFileOffset(va)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	got, err := f.raw.ReadAt(buf, int64(off))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: elfx: read at 0x%x: %v", binimg.ErrIO, off, err)
	}
	if got < n {
		return nil, fmt.Errorf("%w: elfx: read at 0x%x: got %d of %d bytes", binimg.ErrOutOfRange, off, got, n)
	}
	return buf, nil
}

// SegmentInfo describes a PT_LOAD segment.
type SegmentInfo struct {
	Vaddr  uint64
	Memsz  uint64
	Filesz uint64
	Offset uint64
	Flags  elf.ProgFlag
}

// LoadSegments returns all PT_LOAD segments.
func (f *File) LoadSegments() []SegmentInfo {
	var segs []SegmentInfo
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		segs = append(segs, SegmentInfo{
			Vaddr:  p.Vaddr,
			Memsz:  p.Memsz,
			Filesz: p.Filesz,
			Offset: p.Off,
			Flags:  p.Flags,
		})
	}
	return segs
}
