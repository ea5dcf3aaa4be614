package xtab

import (
	"fmt"

	"github.com/samber/lo"

	"xinfo/internal/binimg"
)

// DirRecordSize is the size of one kqftab record.
const DirRecordSize = 80

// kqftab record offsets.
const (
	dirNameLen   = 0
	dirNamePtr   = 8
	dirStructLen = 16
	dirStructPtr = 24
	dirType      = 32
	dirFlags     = 34
	dirRecSize   = 40
	dirColCount  = 56
	dirObjectID  = 64
	dirVersion   = 68
)

// TableEntry is one X$ table from the table directory.
type TableEntry struct {
	Index       int    `json:"index"` // 1-based, join key with kqftap
	ObjectID    uint32 `json:"obj"`
	Version     uint16 `json:"ver"`
	NamePtr     uint64 `json:"nam_ptr"`
	Name        string `json:"nam"`
	StructPtr   uint64 `json:"xstruct_nam_ptr"`
	Struct      string `json:"xstruct"`
	Type        uint16 `json:"typ"`
	Flags       uint16 `json:"flg"`
	RecordSize  uint64 `json:"rsz"`
	ColumnCount uint32 `json:"coc"`
}

// Directory decodes kqftab.
func (d *Decoder) Directory() ([]TableEntry, error) {
	buf, _, err := d.readRegion(DirectorySymbol)
	if err != nil {
		return nil, err
	}
	recs, err := activeRecords(DirectorySymbol, buf, DirRecordSize)
	if err != nil {
		return nil, err
	}

	entries := make([]TableEntry, 0, len(recs))
	seen := make(map[string]int, len(recs))
	for i, rec := range recs {
		e := TableEntry{
			Index:       i + 1,
			ObjectID:    d.u32(rec, dirObjectID),
			Version:     d.u16(rec, dirVersion),
			NamePtr:     d.u64(rec, dirNamePtr),
			StructPtr:   d.u64(rec, dirStructPtr),
			Type:        d.u16(rec, dirType),
			Flags:       d.u16(rec, dirFlags),
			RecordSize:  d.u64(rec, dirRecSize),
			ColumnCount: d.u32(rec, dirColCount),
		}
		nameLen, err := d.nameLen(rec, dirNameLen)
		if err != nil {
			return nil, fmt.Errorf("kqftab record %d: %w", e.Index, err)
		}
		structLen, err := d.nameLen(rec, dirStructLen)
		if err != nil {
			return nil, fmt.Errorf("kqftab record %d: %w", e.Index, err)
		}
		e.Name, err = d.img.ReadCString(e.NamePtr, nameLen+1)
		if err != nil {
			return nil, fmt.Errorf("kqftab record %d name: %w", e.Index, err)
		}
		e.Struct, err = d.img.ReadCString(e.StructPtr, structLen+1)
		if err != nil {
			return nil, fmt.Errorf("kqftab record %d (%s) struct name: %w", e.Index, e.Name, err)
		}
		if prev, dup := seen[e.Name]; dup {
			d.logger.Warn().Str("table", e.Name).Int("first", prev).Int("again", e.Index).
				Msg("duplicate table name in kqftab; layout may not match this engine version")
		} else {
			seen[e.Name] = e.Index
		}
		entries = append(entries, e)
	}

	d.logger.Debug().Int("tables", len(entries)).Msg("decoded kqftab")
	return entries, nil
}

// IndexOf returns the 1-based directory index of the named table.
func IndexOf(entries []TableEntry, name string) (int, error) {
	e, ok := lo.Find(entries, func(e TableEntry) bool { return e.Name == name })
	if !ok {
		return 0, fmt.Errorf("%w: Table %s not found", binimg.ErrNotFound, name)
	}
	return e.Index, nil
}
