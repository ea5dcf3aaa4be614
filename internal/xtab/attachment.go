package xtab

import (
	"fmt"

	"xinfo/internal/binimg"
)

// Attachment is the kqftap entry of the table with the same directory index.
// Callbacks are nil when the record holds a null pointer.
type Attachment struct {
	Index     int         `json:"index"`
	Struct    binimg.Ptr  `json:"xstruct"`
	Callback1 *binimg.Ptr `json:"cb1,omitempty"`
	Callback2 *binimg.Ptr `json:"cb2,omitempty"`
}

// StructName is the symbol of the column descriptor array.
func (a Attachment) StructName() string { return a.Struct.Name }

// Callbacks returns the non-null callbacks in record order.
func (a Attachment) Callbacks() []binimg.Ptr {
	var out []binimg.Ptr
	for _, cb := range []*binimg.Ptr{a.Callback1, a.Callback2} {
		if cb != nil {
			out = append(out, *cb)
		}
	}
	return out
}

// Attachments decodes kqftap using the record layout for the engine major
// version.
func (d *Decoder) Attachments(version int) ([]Attachment, error) {
	return d.AttachmentsAt(AttachmentSymbol, version)
}

// AttachmentsAt decodes an attachment region under another symbol name.
func (d *Decoder) AttachmentsAt(symbol string, version int) ([]Attachment, error) {
	layout, err := SelectLayout(version)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	buf, _, err := d.readRegion(symbol)
	if err != nil {
		return nil, err
	}
	recs, err := activeRecords(symbol, buf, layout.RecordSize)
	if err != nil {
		return nil, err
	}

	atts := make([]Attachment, len(recs))
	pending := make([]*binimg.Ptr, 0, 3*len(recs))
	for i, rec := range recs {
		a := &atts[i]
		a.Index = i + 1
		a.Struct = binimg.Raw(d.u64(rec, layout.StructOff))
		if a.Struct.IsNull() {
			return nil, fmt.Errorf("%w: %s record %d has a null struct pointer (layout for %d)",
				ErrInvalidLayout, symbol, a.Index, layout.MinVersion)
		}
		a.Callback1 = optionalPtr(d.u64(rec, layout.Callback1Off))
		a.Callback2 = optionalPtr(d.u64(rec, layout.Callback2Off))
		pending = append(pending, &a.Struct, a.Callback1, a.Callback2)
	}

	if err := d.img.ResolvePtrs(pending...); err != nil {
		return nil, fmt.Errorf("%s pointers: %w", symbol, err)
	}

	d.logger.Debug().Str("symbol", symbol).Int("layout", layout.MinVersion).
		Int("attachments", len(atts)).Msg("decoded kqftap")
	return atts, nil
}

func optionalPtr(addr uint64) *binimg.Ptr {
	if addr == 0 {
		return nil
	}
	p := binimg.Raw(addr)
	return &p
}

// AttachmentAt returns the attachment with the given directory index.
func AttachmentAt(atts []Attachment, index int) (Attachment, error) {
	if index < 1 || index > len(atts) || atts[index-1].Index != index {
		return Attachment{}, fmt.Errorf("%w: kqftap entry %d (have %d)", binimg.ErrNotFound, index, len(atts))
	}
	return atts[index-1], nil
}
