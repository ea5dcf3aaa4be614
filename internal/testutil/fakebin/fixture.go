package fakebin

// Fixture is a binary carrying three X$ tables, one column struct, two
// callbacks and a conversion operator table.
type Fixture struct {
	*Binary
	F1, F2   uint64
	TableA1C uint64
}

// Record sizes of the fixture regions.
const (
	DirRecordSize     = 80
	ColRecordSize     = 64
	Attach19Size      = 32
	Attach23Size      = 40
	ConvOpRecordSize  = 16
	FixtureTableCount = 3
)

// NewFixture builds the fixture. attachVersion selects the kqftap record
// layout: 23 and above use the 40-byte record, older versions the 32-byte one.
func NewFixture(attachVersion int) *Fixture {
	b := New()

	dirEntry := func(name, xstruct string, namLen, structLen uint64) Record {
		return NewRecord(DirRecordSize).
			U64(0, namLen).U64(8, b.AddString(name)).
			U64(16, structLen).U64(24, b.AddString(xstruct)).
			U16(32, 4).U16(34, 5).U32(36, 1).
			U64(40, 2).U64(48, 2).
			U32(56, 1).U32(60, 1).U32(64, 1).U16(68, 1)
	}
	kqftab := Concat(
		dirEntry("X$TABLEA1", "tablea1", 10, 7),
		dirEntry("X$TABLEB1", "tableb1", 10, 7),
		dirEntry("X$TABLEA2", "tablea2", 10, 7),
		NewRecord(DirRecordSize),
	)

	column := func(name string, dty, typ uint8, lof, siz uint64, off uint16, cop uint64) Record {
		return NewRecord(ColRecordSize).
			U64(0, uint64(len(name))).U64(8, b.AddString(name)).
			U8(16, dty).U8(17, typ).U8(18, 1).U8(19, 2).U8(20, 3).
			U8(21, 4).U8(22, 5).U8(23, 6).U8(24, 2).U8(25, 7).U8(26, 8).U8(27, 9).
			U64(32, lof).U64(40, siz).U16(48, off).U16(50, 11).U64(56, cop)
	}
	cols := Concat(
		column("COL1", 1, 28, 10, 128, 8, 0),
		column("COL2", 2, 11, 10, 1, 32, 1),
		NewRecord(ColRecordSize),
	)

	f := &Fixture{Binary: b}
	f.TableA1C = b.AddSymbol("tablea1_c", cols)
	f.F1 = b.AddFunc("f1")
	f.F2 = b.AddFunc("f2")

	b.AddSymbol("kqftab", kqftab)

	attach := func(size int) []byte {
		return Concat(
			NewRecord(size).U64(8, f.TableA1C).U64(16, f.F1).U64(24, f.F2),
			NewRecord(size),
		)
	}
	if attachVersion >= 23 {
		b.AddSymbol("kqftap", attach(Attach23Size))
	} else {
		b.AddSymbol("kqftap", attach(Attach19Size))
	}
	b.AddSymbol("kqftap23", attach(Attach23Size))

	b.AddSymbol("kqfcop", Concat(
		NewRecord(ConvOpRecordSize),
		NewRecord(ConvOpRecordSize).U64(8, f.F1),
	))
	return f
}
