package xtab

import (
	"fmt"
)

// AttachLayout is the kqftap record layout used from MinVersion on.
// The first word of every layout is reserved.
type AttachLayout struct {
	MinVersion   int
	RecordSize   int
	StructOff    int
	Callback1Off int
	Callback2Off int
}

// attachLayouts is ordered by MinVersion.
var attachLayouts = []AttachLayout{
	{MinVersion: 19, RecordSize: 32, StructOff: 8, Callback1Off: 16, Callback2Off: 24},
	// 23 appends a trailing reserved word.
	{MinVersion: 23, RecordSize: 40, StructOff: 8, Callback1Off: 16, Callback2Off: 24},
}

// AttachLayouts returns the known kqftap layouts, oldest first.
func AttachLayouts() []AttachLayout {
	return append([]AttachLayout(nil), attachLayouts...)
}

// SelectLayout returns the kqftap layout for the engine major version:
// the one with the highest MinVersion not above version.
func SelectLayout(version int) (AttachLayout, error) {
	return selectLayout(attachLayouts, version)
}

func selectLayout(layouts []AttachLayout, version int) (AttachLayout, error) {
	var (
		best  AttachLayout
		found bool
	)
	for _, l := range layouts {
		if l.MinVersion <= version && (!found || l.MinVersion > best.MinVersion) {
			best, found = l, true
		}
	}
	if !found {
		return AttachLayout{}, fmt.Errorf("%w: %d (oldest known layout is for %d)",
			ErrUnsupportedVersion, version, minVersion(layouts))
	}
	return best, nil
}

func minVersion(layouts []AttachLayout) int {
	if len(layouts) == 0 {
		return 0
	}
	m := layouts[0].MinVersion
	for _, l := range layouts[1:] {
		m = min(m, l.MinVersion)
	}
	return m
}
