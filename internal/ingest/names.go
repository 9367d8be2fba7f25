package ingest

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/normalize"
)

// DefaultColumn is the header that holds company names in tabular input.
const DefaultColumn = "company_name"

// Format identifies an input encoding.
type Format string

// Supported input formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatText Format = "text"
)

// ErrMissingColumn is returned when tabular input lacks the name column.
var ErrMissingColumn = eris.New("ingest: missing name column")

// Options controls how names are read.
type Options struct {
	Format Format
	// Column is the header holding names in CSV/XLSX input. Default: company_name.
	Column string
	// SheetName selects a worksheet in XLSX input. Default: first sheet.
	SheetName string
}

// DetectFormat picks a format from a filename extension. Anything that is not
// a spreadsheet is treated as one name per line.
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return FormatText
	}
}

// ReadFile reads company names from the file at path. The format is
// detected from the extension unless opts.Format is set.
func ReadFile(ctx context.Context, path string, opts Options) ([]string, error) {
	if opts.Format == "" {
		opts.Format = DetectFormat(path)
	}
	if opts.Format == FormatXLSX {
		rows, err := ReadXLSX(path, XLSXOptions{SheetName: opts.SheetName})
		if err != nil {
			return nil, err
		}
		return namesFromRows(rows, opts.column())
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Read(ctx, f, opts)
}

// Read reads company names from r in the given format (default text). The
// result is trimmed, free of blanks and deduplicated in first-seen order.
func Read(ctx context.Context, r io.Reader, opts Options) ([]string, error) {
	switch opts.Format {
	case FormatCSV:
		return readCSV(ctx, r, opts.column())
	case FormatXLSX:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read workbook")
		}
		rows, err := ReadXLSXBytes(data, XLSXOptions{SheetName: opts.SheetName})
		if err != nil {
			return nil, err
		}
		return namesFromRows(rows, opts.column())
	case FormatText, "":
		return readLines(r)
	default:
		return nil, eris.Errorf("ingest: unsupported format %q", opts.Format)
	}
}

// FromText splits free text into names, one per line.
func FromText(text string) []string {
	names, _ := readLines(strings.NewReader(text))
	return names
}

// ColumnIndex returns the position of column in header, compared
// case-insensitively after trimming.
func ColumnIndex(header []string, column string) (int, error) {
	want := strings.ToLower(strings.TrimSpace(column))
	for i, h := range header {
		if strings.ToLower(strings.TrimSpace(h)) == want {
			return i, nil
		}
	}
	return -1, eris.Wrapf(ErrMissingColumn, "ingest: column %q not found in header %v", column, header)
}

func (o Options) column() string {
	if o.Column == "" {
		return DefaultColumn
	}
	return o.Column
}

func readCSV(ctx context.Context, r io.Reader, column string) ([]string, error) {
	headerCh := make(chan []string, 1)
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{
		HasHeader:  true,
		HeaderCh:   headerCh,
		LazyQuotes: true,
		TrimSpace:  true,
	})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return nil, err
		}
	}

	var header []string
	select {
	case header = <-headerCh:
	default:
		return nil, eris.Wrap(ErrMissingColumn, "ingest: csv has no header row")
	}
	return namesFromRows(append([][]string{header}, rows...), column)
}

// namesFromRows treats rows[0] as the header.
func namesFromRows(rows [][]string, column string) ([]string, error) {
	if len(rows) == 0 {
		return nil, eris.Wrap(ErrMissingColumn, "ingest: input has no header row")
	}
	idx, err := ColumnIndex(rows[0], column)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if idx < len(row) {
			names = append(names, row[idx])
		}
	}
	return normalize.Dedupe(names), nil
}

func readLines(r io.Reader) ([]string, error) {
	var names []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(string(bytes.TrimPrefix(sc.Bytes(), []byte("\ufeff"))))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: read lines")
	}
	return normalize.Dedupe(names), nil
}
