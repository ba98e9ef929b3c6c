package fetcher

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// Socrata exports start with a UTF-8 byte order mark.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVOptions configures a CSVReader.
type CSVOptions struct {
	Delimiter rune // default ','
	TrimSpace bool // trim every field
	Strict    bool // reject bare quotes inside fields
}

// CSVReader reads a headed CSV one row at a time. Rows shorter than the
// header are padded with empty fields; longer rows are kept as-is.
type CSVReader struct {
	r      *csv.Reader
	header []string
	trim   bool
}

// NewCSVReader reads the header row of r.
func NewCSVReader(r io.Reader, opts CSVOptions) (*CSVReader, error) {
	cr := csv.NewReader(skipBOM(r))
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}
	cr.LazyQuotes = !opts.Strict
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, eris.New("csv: missing header row")
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	return &CSVReader{r: cr, header: header, trim: opts.TrimSpace}, nil
}

// Header returns the trimmed header row.
func (c *CSVReader) Header() []string { return c.header }

// Next returns the next data row, or io.EOF after the last one.
func (c *CSVReader) Next() ([]string, error) {
	row, err := c.r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, eris.Wrap(err, "csv: read row")
	}
	if c.trim {
		for i := range row {
			row[i] = strings.TrimSpace(row[i])
		}
	}
	return padRow(row, len(c.header)), nil
}

// Stream sends rows on the returned channel until the input ends, a read
// fails or ctx is done. The error channel receives at most one error; both
// channels are closed when the goroutine exits.
func (c *CSVReader) Stream(ctx context.Context) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(rowCh)

		for {
			row, err := c.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- err
				return
			}
			select {
			case rowCh <- row:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: stream cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV reads a whole headed CSV into memory.
func ReadCSV(ctx context.Context, r io.Reader) ([]string, [][]string, error) {
	cr, err := NewCSVReader(r, CSVOptions{})
	if err != nil {
		return nil, nil, err
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "csv: read cancelled")
		}
		row, err := cr.Next()
		if err == io.EOF {
			return cr.Header(), rows, nil
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
}

// HeaderIndex maps column names to positions. Lookups ignore case and
// surrounding space; the first of duplicate names wins.
type HeaderIndex map[string]int

// NewHeaderIndex builds a HeaderIndex from a header row.
func NewHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := headerKey(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

// Lookup returns the position of name.
func (h HeaderIndex) Lookup(name string) (int, bool) {
	i, ok := h[headerKey(name)]
	return i, ok
}

func headerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// padRow extends row with empty fields up to width.
func padRow(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}

func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
