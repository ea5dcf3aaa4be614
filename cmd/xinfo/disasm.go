package main

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/spf13/cobra"

	"xinfo/internal/binimg"
	"xinfo/internal/config"
	"xinfo/internal/disasm"
	"xinfo/internal/output"
)

// funcWindow bytes are decoded for a function without a usable symbol size;
// maxFuncSize caps the size taken from the symbol table.
const (
	funcWindow  = 256
	maxFuncSize = 1 << 20
)

// callbackCode is one disassembled callback.
type callbackCode struct {
	Name    string            `json:"name"`
	Addr    uint64            `json:"addr"`
	Size    uint64            `json:"size"`
	Callees map[uint64]string `json:"callees,omitempty"`
	Lines   []string          `json:"insts"`

	insts []disasm.Inst
}

// calleeNames returns the named direct callees in call order.
func (c callbackCode) calleeNames() []string {
	var names []string
	for _, t := range disasm.CallTargets(c.insts) {
		if n, ok := c.Callees[t]; ok {
			names = append(names, binimg.Raw(t).Resolve(n).DisplayName())
		}
	}
	return names
}

// disassemble decodes the function cb points to. Direct call targets are
// named when the binary has a symbol starting there; others stay addresses.
func (s *session) disassemble(cb binimg.Ptr, maxInsts int) (callbackCode, error) {
	if !cb.IsResolved() {
		return callbackCode{}, fmt.Errorf("%w: callback %s has no symbol", binimg.ErrNotFound, cb)
	}
	// Static functions often share a name, so go by address.
	var size uint64
	switch sym, err := s.img.SymbolAt(cb.Addr); {
	case err == nil:
		size = sym.Size
	case errors.Is(err, binimg.ErrNotFound):
		s.logger.Debug().Str("func", cb.Name).Msg("no symbol size, using a fixed window")
	default:
		return callbackCode{}, err
	}
	n := funcWindow
	if size > 0 && size <= maxFuncSize {
		n = int(size)
	}
	data, err := s.img.Read(cb.Addr, n)
	if err != nil {
		return callbackCode{}, fmt.Errorf("%s: %w", cb.Name, err)
	}

	insts := disasm.Disassemble(s.arch, data, disasm.Options{BaseAddr: cb.Addr, MaxSteps: maxInsts})
	code := callbackCode{Name: cb.Name, Addr: cb.Addr, Size: uint64(n), insts: insts}
	if targets := disasm.CallTargets(insts); len(targets) > 0 {
		if code.Callees, err = s.syms.FindSymbols(targets); err != nil {
			return callbackCode{}, err
		}
	}
	s.logger.Debug().Str("func", cb.Name).Int("insts", len(insts)).
		Int("callees", len(code.Callees)).Msg("disassembled")
	return code, nil
}

func (c callbackCode) text() string {
	names := maps.Clone(c.Callees)
	if names == nil {
		names = make(map[uint64]string)
	}
	names[c.Addr] = c.Name
	return disasm.Format(c.insts, disasm.PlaceholderLookup(names))
}

func newDisasmCmd(o *options) *cobra.Command {
	var maxInsts int
	cmd := &cobra.Command{
		Use:   "disasm <table>",
		Short: "Disassemble the kqftap callbacks of an X$ table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer s.Close()

			cbs, err := s.cat.Callbacks(args[0])
			if err != nil {
				return err
			}
			if len(cbs) == 0 {
				s.logger.Info().Str("table", args[0]).Msg("table has no callbacks")
				return nil
			}

			codes := make([]callbackCode, 0, len(cbs))
			for _, cb := range cbs {
				code, err := s.disassemble(cb, maxInsts)
				if err != nil {
					return err
				}
				codes = append(codes, code)
			}

			w := cmd.OutOrStdout()
			if s.cfg.Output == config.OutputJSON {
				for i := range codes {
					codes[i].Lines = strings.Split(strings.TrimSuffix(codes[i].text(), "\n"), "\n")
				}
				return output.Write(w, s.cfg.Output, output.Document{Value: codes})
			}
			for i, c := range codes {
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "0x%08x <%s> (%d bytes, %s):\n",
					c.Addr, binimg.Raw(c.Addr).Resolve(c.Name).DisplayName(), c.Size, s.arch)
				fmt.Fprint(w, c.text())
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxInsts, "max-insts", 200, "maximum instructions per callback")
	return cmd
}
