package main

import (
	"debug/elf"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"xinfo/internal/binimg"
	"xinfo/internal/output"
	"xinfo/internal/xtab"
)

// metadataSymbols are the regions the decoders read.
var metadataSymbols = []string{
	xtab.DirectorySymbol,
	xtab.AttachmentSymbol,
	xtab.ConvOpSymbol,
}

func perm(f elf.ProgFlag) string {
	p := ""
	if f&elf.PF_R != 0 {
		p += "R"
	}
	if f&elf.PF_W != 0 {
		p += "W"
	}
	if f&elf.PF_X != 0 {
		p += "X"
	}
	return p
}

// infoDocument lists the PT_LOAD segments and the metadata symbols of the
// opened binary.
func (s *session) infoDocument() (output.Document, error) {
	doc := output.Document{
		Title:  fmt.Sprintf("%s (%s, %d bytes, version %d)", s.cfg.Binary, s.arch, s.elf.FileSize(), s.cfg.Version),
		Header: []string{"Kind", "Name", "Address", "Size", "File offset", "Perm"},
	}
	type row struct {
		Kind   string `json:"kind"`
		Name   string `json:"name,omitempty"`
		Addr   uint64 `json:"addr"`
		Size   uint64 `json:"size"`
		Offset uint64 `json:"offset"`
		Perm   string `json:"perm,omitempty"`
	}
	var rows []row
	for i, seg := range s.elf.LoadSegments() {
		rows = append(rows, row{
			Kind: "segment", Name: fmt.Sprintf("PT_LOAD[%d]", i),
			Addr: seg.Vaddr, Size: seg.Memsz, Offset: seg.Offset, Perm: perm(seg.Flags),
		})
	}
	for _, name := range metadataSymbols {
		sym, err := s.img.Locate(name)
		if errors.Is(err, binimg.ErrNotFound) {
			s.logger.Warn().Str("symbol", name).Msg("metadata symbol not found")
			continue
		}
		if err != nil {
			return doc, err
		}
		off, err := s.elf.VAToFileOffset(sym.Addr)
		if err != nil {
			return doc, err
		}
		rows = append(rows, row{Kind: "symbol", Name: name, Addr: sym.Addr, Size: sym.Size, Offset: off})
	}
	for _, r := range rows {
		doc.Rows = append(doc.Rows, []string{
			r.Kind, r.Name, fmt.Sprintf("0x%08x", r.Addr), fmt.Sprintf("0x%x", r.Size),
			fmt.Sprintf("0x%08x", r.Offset), r.Perm,
		})
	}
	doc.Value = rows
	return doc, nil
}

func newInfoCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the segments and X$ metadata regions of the binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer s.Close()

			doc, err := s.infoDocument()
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), s.cfg.Output, doc)
		},
	}
}
