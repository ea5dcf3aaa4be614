package xtab

import (
	"fmt"
	"slices"

	"xinfo/internal/binimg"
)

// ConvOpRecordSize is the size of one kqfcop record.
const ConvOpRecordSize = 16

const convOpFunc = 8

// handledConvTypes are the column type codes whose conversion function is
// taken from the kqfcop function slot.
var handledConvTypes = []uint8{7, 11}

// ConvOp is one kqfcop record.
type ConvOp struct {
	Index int        `json:"index"`
	Func  binimg.Ptr `json:"func"`
}

// ConvTable is the decoded conversion operator table. It implements
// ConvLookup.
type ConvTable struct {
	Ops []ConvOp `json:"ops"`
}

// Lookup returns the conversion function of operator index for a column of
// type typ. The type is checked before the index.
func (t *ConvTable) Lookup(index uint64, typ uint8) (string, error) {
	if !slices.Contains(handledConvTypes, typ) {
		return "", fmt.Errorf("%w = %d (index %d)", ErrUnhandledConversion, typ, index)
	}
	if index >= uint64(len(t.Ops)) {
		return "", fmt.Errorf("%w: kqfcop index %d (have %d)", binimg.ErrNotFound, index, len(t.Ops))
	}
	op := t.Ops[index]
	if op.Func.IsNull() {
		return "", fmt.Errorf("%w: kqfcop index %d has no function", binimg.ErrNotFound, index)
	}
	return op.Func.Name, nil
}

// ConvOps decodes kqfcop. The table has no sentinel record.
func (d *Decoder) ConvOps() (*ConvTable, error) {
	buf, sym, err := d.readRegion(ConvOpSymbol)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 || len(buf)%ConvOpRecordSize != 0 {
		return nil, fmt.Errorf("%w: %s is %d bytes, want a positive multiple of %d",
			ErrInvalidLayout, sym.Name, len(buf), ConvOpRecordSize)
	}

	n := len(buf) / ConvOpRecordSize
	t := &ConvTable{Ops: make([]ConvOp, n)}
	pending := make([]*binimg.Ptr, n)
	for i := range n {
		rec := buf[i*ConvOpRecordSize : (i+1)*ConvOpRecordSize]
		t.Ops[i] = ConvOp{Index: i, Func: binimg.Raw(d.u64(rec, convOpFunc))}
		pending[i] = &t.Ops[i].Func
	}
	if err := d.img.ResolvePtrs(pending...); err != nil {
		return nil, fmt.Errorf("kqfcop pointers: %w", err)
	}

	d.logger.Debug().Int("ops", n).Msg("decoded kqfcop")
	return t, nil
}
