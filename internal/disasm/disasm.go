// Package disasm disassembles the x86-64 and ARM64 callback functions
// referenced by X$ table attachments.
package disasm

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Arch is an instruction set.
type Arch int

const (
	ArchX86_64 Arch = iota
	ArchARM64
)

func (a Arch) String() string {
	if a == ArchARM64 {
		return "arm64"
	}
	return "x86-64"
}

var ErrUnsupportedArch = errors.New("disasm: unsupported architecture")

// ArchFor maps an ELF machine to an Arch.
func ArchFor(m elf.Machine) (Arch, error) {
	switch m {
	case elf.EM_X86_64:
		return ArchX86_64, nil
	case elf.EM_AARCH64:
		return ArchARM64, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedArch, m)
}

// Inst is a decoded instruction with address and raw bytes.
type Inst struct {
	Addr     uint64
	Bytes    []byte
	Mnemonic string
	Operands string
	Text     string // full disassembly line
	// Target is the destination of a direct call or jump, 0 otherwise.
	Target uint64
	Call   bool
}

// Size is the encoded length.
func (i Inst) Size() int { return len(i.Bytes) }

// SymbolLookup resolves an address to a symbolic name. Returns ("", false) if unknown.
type SymbolLookup func(addr uint64) (name string, ok bool)

// Options controls disassembly behavior.
type Options struct {
	BaseAddr uint64       // VA of the first byte in Data
	MaxSteps int          // maximum instructions to decode; 0 = 10M
	Symbols  SymbolLookup // optional symbol resolver for operand text
}

const defaultMaxSteps = 10_000_000

func (o Options) effectiveMax() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes instructions from a byte region up to MaxSteps or
// the end of data. Undecodable bytes become data directives.
func Disassemble(arch Arch, data []byte, opts Options) []Inst {
	if arch == ArchARM64 {
		return disassembleARM64(data, opts)
	}
	return disassembleX86(data, opts)
}

func splitText(text string) (mnemonic, operands string) {
	parts := strings.SplitN(text, " ", 2)
	mnemonic = parts[0]
	if len(parts) > 1 {
		operands = strings.TrimSpace(parts[1])
	}
	return mnemonic, operands
}

func disassembleX86(data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	var symname x86asm.SymLookup
	if opts.Symbols != nil {
		symname = func(addr uint64) (string, uint64) {
			if name, ok := opts.Symbols(addr); ok {
				return name, addr
			}
			return "", 0
		}
	}

	var result []Inst
	for off := 0; off < len(data) && len(result) < maxSteps; {
		addr := opts.BaseAddr + uint64(off)
		inst, err := x86asm.Decode(data[off:], 64)
		if err != nil || inst.Len == 0 {
			result = append(result, Inst{
				Addr:     addr,
				Bytes:    data[off : off+1],
				Mnemonic: ".byte",
				Operands: fmt.Sprintf("0x%02x", data[off]),
				Text:     fmt.Sprintf(".byte 0x%02x", data[off]),
			})
			off++
			continue
		}

		text := x86asm.IntelSyntax(inst, addr, symname)
		mnemonic, operands := splitText(text)
		out := Inst{
			Addr:     addr,
			Bytes:    data[off : off+inst.Len],
			Mnemonic: mnemonic,
			Operands: operands,
			Text:     text,
		}
		if inst.Op == x86asm.CALL || inst.Op == x86asm.JMP {
			if rel, ok := inst.Args[0].(x86asm.Rel); ok {
				out.Target = addr + uint64(inst.Len) + uint64(int64(rel))
				out.Call = inst.Op == x86asm.CALL
			}
		}
		result = append(result, out)
		off += inst.Len
	}
	return result
}

func disassembleARM64(data []byte, opts Options) []Inst {
	maxSteps := opts.effectiveMax()
	n := min(len(data)/4, maxSteps)

	result := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		off := i * 4
		raw := binary.LittleEndian.Uint32(data[off : off+4])
		addr := opts.BaseAddr + uint64(off)

		out := Inst{Addr: addr, Bytes: data[off : off+4]}
		inst, err := arm64asm.Decode(data[off : off+4])
		if err != nil {
			out.Mnemonic = ".word"
			out.Operands = fmt.Sprintf("0x%08x", raw)
			out.Text = fmt.Sprintf(".word 0x%08x", raw)
		} else {
			out.Text = inst.String()
			out.Mnemonic, out.Operands = splitText(out.Text)
			if inst.Op == arm64asm.BL || inst.Op == arm64asm.B {
				if rel, ok := inst.Args[0].(arm64asm.PCRel); ok {
					out.Target = addr + uint64(int64(rel))
					out.Call = inst.Op == arm64asm.BL
				}
			}
		}
		result = append(result, out)
	}
	return result
}

// CallTargets returns the distinct direct call targets in order of first
// appearance.
func CallTargets(insts []Inst) []uint64 {
	calls := lo.Filter(insts, func(i Inst, _ int) bool { return i.Call && i.Target != 0 })
	return lo.Uniq(lo.Map(calls, func(i Inst, _ int) uint64 { return i.Target }))
}

// Format renders a slice of instructions as stable text output.
// Each line: <addr>  <hex bytes>  <disasm>  ; <comments>
func Format(insts []Inst, lookup SymbolLookup) string {
	width := 0
	for _, inst := range insts {
		width = max(width, 3*len(inst.Bytes))
	}
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  ", inst.Addr)
		hex := make([]string, len(inst.Bytes))
		for i, c := range inst.Bytes {
			hex[i] = fmt.Sprintf("%02x", c)
		}
		fmt.Fprintf(&b, "%-*s ", width, strings.Join(hex, " "))
		b.WriteString(inst.Text)
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
			} else if inst.Target != 0 {
				if name, ok := lookup(inst.Target); ok {
					fmt.Fprintf(&b, "  ; -> %s", name)
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// PlaceholderLookup returns a SymbolLookup over a fixed address map.
func PlaceholderLookup(entryPoints map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		if name, ok := entryPoints[addr]; ok {
			return name, true
		}
		return "", false
	}
}
