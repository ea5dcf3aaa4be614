package binimg

import (
	"fmt"

	"github.com/ianlancetaylor/demangle"
	"github.com/samber/lo"
)

// PtrState tells whether a pointer field still holds a raw address.
type PtrState uint8

const (
	PtrRaw PtrState = iota
	PtrResolved
)

func (s PtrState) String() string {
	if s == PtrResolved {
		return "resolved"
	}
	return "raw"
}

func (s PtrState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *PtrState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "raw":
		*s = PtrRaw
	case "resolved":
		*s = PtrResolved
	default:
		return fmt.Errorf("%w: pointer state %q", ErrMalformed, b)
	}
	return nil
}

// Ptr is a pointer field decoded from a record: either a raw address or an
// address with its symbol name.
type Ptr struct {
	State PtrState `json:"state"`
	Addr  uint64   `json:"addr"`
	Name  string   `json:"name,omitempty"`
}

// Raw returns an unresolved pointer.
func Raw(addr uint64) Ptr { return Ptr{State: PtrRaw, Addr: addr} }

func (p Ptr) IsNull() bool     { return p.Addr == 0 }
func (p Ptr) IsResolved() bool { return p.State == PtrResolved }

// Resolve returns p carrying name.
func (p Ptr) Resolve(name string) Ptr {
	return Ptr{State: PtrResolved, Addr: p.Addr, Name: name}
}

// DisplayName is the demangled symbol name, or the hex address while raw.
func (p Ptr) DisplayName() string {
	if !p.IsResolved() {
		return fmt.Sprintf("0x%x", p.Addr)
	}
	return demangle.Filter(p.Name)
}

func (p Ptr) String() string {
	if !p.IsResolved() {
		return fmt.Sprintf("0x%x", p.Addr)
	}
	return p.Name
}

// ResolvePtrs names every raw, non-null pointer in ptrs using a single
// ResolveMany call. Nil entries and null pointers are skipped.
func (img *Image) ResolvePtrs(ptrs ...*Ptr) error {
	pending := lo.Filter(ptrs, func(p *Ptr, _ int) bool {
		return p != nil && !p.IsNull() && !p.IsResolved()
	})
	if len(pending) == 0 {
		return nil
	}
	names, err := img.ResolveMany(lo.Map(pending, func(p *Ptr, _ int) uint64 { return p.Addr }))
	if err != nil {
		return err
	}
	for _, p := range pending {
		*p = p.Resolve(names[p.Addr])
	}
	return nil
}
