// Package catalog answers X$ table questions (list, describe, callbacks)
// from the decoded metadata datasets, going through the persistent cache.
package catalog

import (
	"fmt"
	"path"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"xinfo/internal/binimg"
	"xinfo/internal/cache"
	"xinfo/internal/config"
	"xinfo/internal/xtab"
)

// Dataset names in the persistent cache.
const (
	DatasetDirectory   = xtab.DirectorySymbol
	DatasetAttachments = xtab.AttachmentSymbol
	DatasetConvOps     = xtab.ConvOpSymbol
)

// Catalog is a view of one binary. Datasets are loaded at most once per
// Catalog; with refresh set, that one load recomputes and rewrites the
// cache entry.
type Catalog struct {
	dec     *xtab.Decoder
	store   *cache.Store
	version int
	refresh bool
	logger  zerolog.Logger

	dir  []xtab.TableEntry
	atts []xtab.Attachment
	conv *xtab.ConvTable
	cols map[string][]xtab.Column
}

// New returns a catalog decoding with dec. store may be nil to disable
// persistence.
func New(dec *xtab.Decoder, store *cache.Store, cfg config.Config, logger zerolog.Logger) *Catalog {
	return &Catalog{
		dec:     dec,
		store:   store,
		version: cfg.Version,
		refresh: cfg.Refresh,
		logger:  logger.With().Str("component", "catalog").Logger(),
		cols:    make(map[string][]xtab.Column),
	}
}

func load[T any](c *Catalog, name string, compute func() (T, error)) (T, error) {
	if c.store == nil {
		return compute()
	}
	return cache.Load(c.store, name, c.refresh, compute)
}

// Directory returns the table directory.
func (c *Catalog) Directory() ([]xtab.TableEntry, error) {
	if c.dir != nil {
		return c.dir, nil
	}
	dir, err := load(c, DatasetDirectory, c.dec.Directory)
	if err != nil {
		return nil, err
	}
	c.dir = dir
	return dir, nil
}

// Attachments returns the table attachments for the configured version.
func (c *Catalog) Attachments() ([]xtab.Attachment, error) {
	if c.atts != nil {
		return c.atts, nil
	}
	atts, err := load(c, DatasetAttachments, func() ([]xtab.Attachment, error) {
		return c.dec.Attachments(c.version)
	})
	if err != nil {
		return nil, err
	}
	c.atts = atts
	return atts, nil
}

// ConvOps returns the conversion operator table.
func (c *Catalog) ConvOps() (*xtab.ConvTable, error) {
	if c.conv != nil {
		return c.conv, nil
	}
	conv, err := load(c, DatasetConvOps, c.dec.ConvOps)
	if err != nil {
		return nil, err
	}
	c.conv = conv
	return conv, nil
}

// Lookup implements xtab.ConvLookup, loading kqfcop on first use.
func (c *Catalog) Lookup(index uint64, typ uint8) (string, error) {
	conv, err := c.ConvOps()
	if err != nil {
		return "", err
	}
	return conv.Lookup(index, typ)
}

// Columns returns the column descriptors of an implementing struct.
func (c *Catalog) Columns(structName string) ([]xtab.Column, error) {
	if cols, ok := c.cols[structName]; ok {
		return cols, nil
	}
	cols, err := load(c, xtab.ColumnsDataset(structName), func() ([]xtab.Column, error) {
		return c.dec.Columns(structName, c)
	})
	if err != nil {
		return nil, err
	}
	c.cols[structName] = cols
	return cols, nil
}

// Index returns the 1-based directory index of table.
func (c *Catalog) Index(table string) (int, error) {
	dir, err := c.Directory()
	if err != nil {
		return 0, err
	}
	return xtab.IndexOf(dir, table)
}

// Listing is a directory entry, optionally joined with its attachment.
type Listing struct {
	xtab.TableEntry
	Attachment *xtab.Attachment `json:"kqftap,omitempty"`
}

// List returns the tables whose name matches the shell pattern (all tables
// for an empty pattern), in directory order.
func (c *Catalog) List(pattern string, withAttachment bool) ([]Listing, error) {
	if pattern != "" {
		if _, err := path.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	dir, err := c.Directory()
	if err != nil {
		return nil, err
	}
	matched := lo.Filter(dir, func(e xtab.TableEntry, _ int) bool {
		if pattern == "" {
			return true
		}
		ok, _ := path.Match(pattern, e.Name)
		return ok
	})

	var atts []xtab.Attachment
	if withAttachment && len(matched) > 0 {
		if atts, err = c.Attachments(); err != nil {
			return nil, err
		}
	}

	out := make([]Listing, 0, len(matched))
	for _, e := range matched {
		l := Listing{TableEntry: e}
		if withAttachment {
			a, err := xtab.AttachmentAt(atts, e.Index)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", e.Name, err)
			}
			l.Attachment = &a
		}
		out = append(out, l)
	}
	c.logger.Debug().Str("pattern", pattern).Int("matched", len(out)).Msg("listed tables")
	return out, nil
}

// Description is the column layout of one table.
type Description struct {
	Table   string        `json:"table"`
	Index   int           `json:"index"`
	Struct  string        `json:"xstruct"`
	Columns []xtab.Column `json:"columns"`
}

func (c *Catalog) attachmentOf(table string) (int, xtab.Attachment, error) {
	idx, err := c.Index(table)
	if err != nil {
		return 0, xtab.Attachment{}, err
	}
	atts, err := c.Attachments()
	if err != nil {
		return 0, xtab.Attachment{}, err
	}
	a, err := xtab.AttachmentAt(atts, idx)
	if err != nil {
		return 0, xtab.Attachment{}, fmt.Errorf("%s: %w", table, err)
	}
	return idx, a, nil
}

// Describe returns the columns of table.
func (c *Catalog) Describe(table string) (Description, error) {
	idx, a, err := c.attachmentOf(table)
	if err != nil {
		return Description{}, err
	}
	cols, err := c.Columns(a.StructName())
	if err != nil {
		return Description{}, err
	}
	return Description{Table: table, Index: idx, Struct: a.StructName(), Columns: cols}, nil
}

// Callbacks returns the resolved callback functions of table.
func (c *Catalog) Callbacks(table string) ([]binimg.Ptr, error) {
	_, a, err := c.attachmentOf(table)
	if err != nil {
		return nil, err
	}
	return a.Callbacks(), nil
}
