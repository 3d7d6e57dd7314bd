package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-dedupe/internal/model"
	"github.com/sells-group/crm-dedupe/internal/normalize"
)

// Format is an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// LoadOptions configures LoadTable.
type LoadOptions struct {
	Format   Format // default: from the file extension
	Encoding string // CSV input charset
	Sheet    string // XLSX worksheet name; default first sheet
	HTTP     *HTTPFetcher
	FTP      *FTPFetcher
}

// DetectFormat picks the format from a path or URL extension. Anything
// other than .xlsx is read as CSV.
func DetectFormat(location string) Format {
	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" && u.Path != "" {
		p = u.Path
	}
	if strings.EqualFold(path.Ext(p), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func isFTP(location string) bool {
	return strings.HasPrefix(location, "ftp://")
}

// LoadTable reads a local path, an http(s) URL or an ftp URL into a table
// tagged with source.
func LoadTable(ctx context.Context, location string, source model.SourceType, opts LoadOptions) (*model.Table, error) {
	var rc io.ReadCloser
	switch {
	case isFTP(location):
		f := opts.FTP
		if f == nil {
			f = NewFTPFetcher(FTPOptions{})
		}
		body, err := f.Download(ctx, location)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: download %s", redactURL(location))
		}
		rc = body
	case isRemote(location):
		f := opts.HTTP
		if f == nil {
			f = NewHTTPFetcher(HTTPOptions{})
		}
		body, err := f.Download(ctx, location)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: download %s", location)
		}
		rc = body
	default:
		file, err := os.Open(location)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", location)
		}
		rc = file
	}
	defer rc.Close() //nolint:errcheck

	format := opts.Format
	if format == "" {
		format = DetectFormat(location)
	}

	name := filepath.Base(location)
	t, err := ReadTable(ctx, rc, name, source, format, opts)
	if err != nil {
		return nil, err
	}

	zap.L().Info("fetcher: loaded table",
		zap.String("name", name),
		zap.String("source", string(source)),
		zap.Int("rows", t.Len()),
		zap.Int("columns", len(t.Columns)),
	)
	return t, nil
}

// ReadTable parses r in the given format. The first row is the header;
// headers are cleaned and blank rows skipped.
func ReadTable(ctx context.Context, r io.Reader, name string, source model.SourceType, format Format, opts LoadOptions) (*model.Table, error) {
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatXLSX:
		rows, err = ReadXLSX(r, XLSXOptions{SheetName: opts.Sheet})
	case FormatCSV:
		rows, err = ReadCSV(ctx, r, CSVOptions{Encoding: opts.Encoding, LazyQuotes: true})
	default:
		return nil, eris.Errorf("fetcher: unsupported format %q", format)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: read %s", name)
	}
	return NewTable(name, source, rows)
}

// NewTable builds a table from raw rows whose first row is the header.
func NewTable(name string, source model.SourceType, rows [][]string) (*model.Table, error) {
	if len(rows) == 0 {
		return nil, eris.Errorf("fetcher: %s has no header row", name)
	}

	t := &model.Table{
		Name:       name,
		SourceType: source,
		Columns:    CleanHeaders(rows[0]),
	}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// CleanHeaders trims, lowercases and underscores header names. Empty
// headers become "column_<n>" and repeats get a numeric suffix so that
// every column name is unique.
func CleanHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		c := normalize.Header(h)
		if c == "" {
			c = "column_" + strconv.Itoa(i+1)
		}
		if n := seen[c]; n > 0 {
			seen[c]++
			c = c + "_" + strconv.Itoa(n+1)
		} else {
			seen[c] = 1
		}
		out[i] = c
	}
	return out
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
