// Package xtab decodes the fixed-layout X$ table metadata regions of the
// database engine executable: the table directory (kqftab), the table
// attachments (kqftap), the column descriptors of each implementing struct
// and the conversion operator table (kqfcop).
//
// Every decoder works through a binimg.Image and either returns a complete
// result or an error; there are no partial decodes.
package xtab

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"xinfo/internal/binimg"
)

var (
	ErrUnsupportedVersion  = errors.New("xtab: unsupported engine version")
	ErrInvalidLayout       = errors.New("xtab: invalid region layout")
	ErrUnhandledConversion = errors.New("xtab: unhandled kqfcop typ")
)

// Symbols of the decoded regions.
const (
	DirectorySymbol  = "kqftab"
	AttachmentSymbol = "kqftap"
	ConvOpSymbol     = "kqfcop"
)

// Decoder decodes X$ metadata regions of one binary image.
type Decoder struct {
	img    *binimg.Image
	order  binary.ByteOrder
	logger zerolog.Logger
}

// NewDecoder returns a decoder reading through img.
func NewDecoder(img *binimg.Image, logger zerolog.Logger) *Decoder {
	return &Decoder{
		img:    img,
		order:  img.ByteOrder(),
		logger: logger.With().Str("component", "xtab").Logger(),
	}
}

// readRegion reads the whole region covered by symbol name.
func (d *Decoder) readRegion(name string) ([]byte, binimg.Symbol, error) {
	buf, sym, err := d.img.ReadSymbol(name)
	if err != nil {
		return nil, sym, fmt.Errorf("read %s: %w", name, err)
	}
	return buf, sym, nil
}

// activeRecords splits a region of back-to-back records of size recSize and
// drops the trailing sentinel record. Bytes past the last whole record are
// ignored.
func activeRecords(name string, buf []byte, recSize int) ([][]byte, error) {
	total := len(buf) / recSize
	if total < 1 {
		return nil, fmt.Errorf("%w: %s is %d bytes, smaller than one %d-byte record",
			ErrInvalidLayout, name, len(buf), recSize)
	}
	recs := make([][]byte, 0, total-1)
	for i := 0; i < total-1; i++ {
		recs = append(recs, buf[i*recSize:(i+1)*recSize])
	}
	return recs, nil
}

// field readers over one record.

func (d *Decoder) u16(rec []byte, off int) uint16 { return d.order.Uint16(rec[off:]) }
func (d *Decoder) u32(rec []byte, off int) uint32 { return d.order.Uint32(rec[off:]) }
func (d *Decoder) u64(rec []byte, off int) uint64 { return d.order.Uint64(rec[off:]) }

// MaxNameLen bounds the stored length of a table, struct or column name.
// Real names are a few dozen bytes; anything longer means the region is not
// what the decoder expects.
const MaxNameLen = 4096

// nameLen reads a stored name length, excluding the terminator.
func (d *Decoder) nameLen(rec []byte, off int) (int, error) {
	n := d.u64(rec, off)
	if n > MaxNameLen {
		return 0, fmt.Errorf("%w: name length %d exceeds %d", ErrInvalidLayout, n, MaxNameLen)
	}
	return int(n), nil
}
