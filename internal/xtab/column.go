package xtab

import (
	"fmt"
)

// ColRecordSize is the size of one column descriptor.
const ColRecordSize = 64

// column descriptor offsets.
const (
	colNameLen   = 0
	colNamePtr   = 8
	colDataType  = 16
	colType      = 17
	colIndexed   = 18
	colPosOrder  = 19
	colMaxOccurs = 20
	colLenSize   = 24
	colLenOffset = 32
	colSize      = 40
	colOffset    = 48
	colConvIndex = 56
)

// Column describes one column of an X$ table row.
type Column struct {
	Number    int    `json:"cno"`
	NamePtr   uint64 `json:"nam_ptr"`
	Name      string `json:"nam"`
	Size      uint64 `json:"siz"`
	DataType  uint8  `json:"dty"`
	Type      uint8  `json:"typ"`
	MaxOccurs uint8  `json:"max"`
	LenSize   uint8  `json:"lsz"`
	LenOffset uint64 `json:"lof"`
	Offset    uint16 `json:"off"`
	Indexed   uint8  `json:"idx"`
	PosOrder  uint8  `json:"ipo"`
	ConvIndex uint64 `json:"kqfcop_indx"`
	ConvFunc  string `json:"func,omitempty"`
}

// ConvLookup names the conversion function for a column.
type ConvLookup interface {
	Lookup(index uint64, typ uint8) (string, error)
}

// Columns decodes the column descriptor array of the named struct. conv is
// consulted for every column with a non-zero conversion index; it may be nil
// only if no column has one.
func (d *Decoder) Columns(structName string, conv ConvLookup) ([]Column, error) {
	sym, err := d.img.Locate(structName)
	if err != nil {
		return nil, err
	}
	// At least one column plus the sentinel.
	if sym.Size%ColRecordSize != 0 || sym.Size < 2*ColRecordSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, want a multiple of %d holding at least one column",
			ErrInvalidLayout, structName, sym.Size, ColRecordSize)
	}
	buf, err := d.img.Read(sym.Addr, int(sym.Size))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", structName, err)
	}
	recs, err := activeRecords(structName, buf, ColRecordSize)
	if err != nil {
		return nil, err
	}

	cols := make([]Column, 0, len(recs))
	for i, rec := range recs {
		c := Column{
			Number:    i + 1,
			NamePtr:   d.u64(rec, colNamePtr),
			DataType:  rec[colDataType],
			Type:      rec[colType],
			Indexed:   rec[colIndexed],
			PosOrder:  rec[colPosOrder],
			MaxOccurs: rec[colMaxOccurs],
			LenSize:   rec[colLenSize],
			LenOffset: d.u64(rec, colLenOffset),
			Size:      d.u64(rec, colSize),
			Offset:    d.u16(rec, colOffset),
			ConvIndex: d.u64(rec, colConvIndex),
		}
		n, err := d.nameLen(rec, colNameLen)
		if err != nil {
			return nil, fmt.Errorf("%s column %d: %w", structName, c.Number, err)
		}
		c.Name, err = d.img.ReadCString(c.NamePtr, n+1)
		if err != nil {
			return nil, fmt.Errorf("%s column %d name: %w", structName, c.Number, err)
		}
		if c.ConvIndex != 0 {
			if conv == nil {
				return nil, fmt.Errorf("%w: %s.%s has kqfcop index %d and no kqfcop table was given",
					ErrUnhandledConversion, structName, c.Name, c.ConvIndex)
			}
			c.ConvFunc, err = conv.Lookup(c.ConvIndex, c.Type)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", structName, c.Name, err)
			}
		}
		cols = append(cols, c)
	}

	d.logger.Debug().Str("struct", structName).Int("columns", len(cols)).Msg("decoded columns")
	return cols, nil
}

// ColumnsDataset is the cache dataset name of a struct's columns.
func ColumnsDataset(structName string) string {
	return "columns_" + structName
}
