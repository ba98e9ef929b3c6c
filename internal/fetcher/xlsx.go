package fetcher

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the worksheet to read. SheetName wins over
// SheetIndex when both are set.
type XLSXOptions struct {
	SheetIndex int
	SheetName  string
}

func (o XLSXOptions) sheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if o.SheetName != "" {
		if s, ok := f.Sheet[o.SheetName]; ok {
			return s, nil
		}
		return nil, eris.Errorf("xlsx: sheet %q not found", o.SheetName)
	}
	if o.SheetIndex < 0 || o.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", o.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[o.SheetIndex], nil
}

// ReadXLSX reads a worksheet whose first row is the header, as saved by
// the census fetch. Blank rows are dropped and short rows are padded.
func ReadXLSX(path string, opts XLSXOptions) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	sheet, err := opts.sheet(f)
	if err != nil {
		return nil, nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.Errorf("xlsx: sheet %q is empty", sheet.Name)
	}

	header := cellStrings(sheet.Rows[0], true)
	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, r := range sheet.Rows[1:] {
		cells := cellStrings(r, false)
		if !slices.ContainsFunc(cells, func(c string) bool { return strings.TrimSpace(c) != "" }) {
			continue
		}
		rows = append(rows, padRow(cells, len(header)))
	}
	return header, rows, nil
}

func cellStrings(r *xlsx.Row, trim bool) []string {
	out := make([]string, len(r.Cells))
	for i, c := range r.Cells {
		out[i] = c.String()
		if trim {
			out[i] = strings.TrimSpace(out[i])
		}
	}
	return out
}
