// Package output renders command results as a text table, JSON or an HTML
// page.
package output

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"xinfo/internal/catalog"
	"xinfo/internal/config"
)

var ErrFormat = errors.New("output: unknown format")

// Document is one command result. Header and Rows drive the table and HTML
// renderings; Value is what JSON output encodes.
type Document struct {
	Title  string
	Header []string
	Rows   [][]string
	Value  any
}

// Write renders doc to w in format.
func Write(w io.Writer, format string, doc Document) error {
	switch format {
	case config.OutputTable, "":
		return writeTable(w, doc)
	case config.OutputJSON:
		return writeJSON(w, doc.Value)
	case config.OutputHTML:
		return writeHTML(w, doc)
	default:
		return fmt.Errorf("%w: %q", ErrFormat, format)
	}
}

func writeTable(w io.Writer, doc Document) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(doc.Header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.AppendBulk(doc.Rows)
	table.Render()
	return nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("output: encode: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func num[T ~int | ~uint8 | ~uint16 | ~uint32 | ~uint64](v T) string {
	return strconv.FormatUint(uint64(v), 10)
}

// ListDocument is the result of the list command.
func ListDocument(ls []catalog.Listing, withAttachment bool) Document {
	doc := Document{
		Title:  "X$ tables",
		Header: []string{"#", "Name", "Obj", "Ver", "Struct", "Typ", "Flg", "Rsz", "Coc"},
		Value:  ls,
	}
	if withAttachment {
		doc.Header = append(doc.Header, "Columns struct", "Callback 1", "Callback 2")
	}
	for _, l := range ls {
		row := []string{
			num(l.Index), l.Name, num(l.ObjectID), num(l.Version), l.Struct,
			num(l.Type), num(l.Flags), num(l.RecordSize), num(l.ColumnCount),
		}
		if withAttachment && l.Attachment != nil {
			cb1, cb2 := "", ""
			if l.Attachment.Callback1 != nil {
				cb1 = l.Attachment.Callback1.DisplayName()
			}
			if l.Attachment.Callback2 != nil {
				cb2 = l.Attachment.Callback2.DisplayName()
			}
			row = append(row, l.Attachment.StructName(), cb1, cb2)
		}
		doc.Rows = append(doc.Rows, row)
	}
	return doc
}

// DescDocument is the result of the desc command.
func DescDocument(d catalog.Description) Document {
	doc := Document{
		Title: fmt.Sprintf("%s (%s)", d.Table, d.Struct),
		Header: []string{"#", "Name", "Siz", "Dty", "Typ", "Max", "Lsz", "Lof",
			"Off", "Idx", "Ipo", "Kqfcop", "Func"},
		Value: d,
	}
	for _, c := range d.Columns {
		doc.Rows = append(doc.Rows, []string{
			num(c.Number), c.Name, num(c.Size), num(c.DataType), num(c.Type),
			num(c.MaxOccurs), num(c.LenSize), num(c.LenOffset), num(c.Offset),
			num(c.Indexed), num(c.PosOrder), num(c.ConvIndex), c.ConvFunc,
		})
	}
	return doc
}
