// Package legacyio reads legacy export files (NDJSON, CSV, XLSX,
// optionally zipped) from local paths or remote sources into generic
// rows for the mapper.
package legacyio

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Export formats accepted by Open.
const (
	FormatNDJSON = "ndjson"
	FormatCSV    = "csv"
	FormatXLSX   = "xlsx"
)

// DefaultBatchSize is the replay batch size when the caller does not
// choose one.
const DefaultBatchSize = 2000

// Reader yields every row of one legacy export.
type Reader interface {
	Read(ctx context.Context) ([]map[string]any, error)
}

// Options configures Open.
type Options struct {
	Format  string // ndjson, csv, or xlsx; empty = detect from extension
	Charset string // optional charset of a CSV export, e.g. "latin1"
	Sheet   string // optional XLSX sheet name; empty = first sheet
}

// Open resolves a source reference to a Reader. Local paths are read in
// place; http(s) and ftp sources are downloaded to a temp file first,
// and .zip sources are unpacked. The cleanup func removes any temp
// files and must be called once the reader is no longer needed.
func Open(ctx context.Context, source string, opts Options) (Reader, func(), error) {
	local := source
	cleanup := func() {}

	if u, err := url.Parse(source); err == nil && remoteScheme(u.Scheme) {
		path, err := fetchTemp(ctx, u)
		if err != nil {
			return nil, nil, err
		}
		local = path
		cleanup = func() { _ = os.Remove(path) }
	}

	if _, err := os.Stat(local); err != nil {
		cleanup()
		return nil, nil, eris.Wrapf(err, "legacyio: source %s", source)
	}

	// Zipped exports are unpacked first; format detection then runs on
	// the inner file name.
	if strings.EqualFold(filepath.Ext(local), ".zip") {
		dir, err := os.MkdirTemp("", "legacy-zip-*")
		if err != nil {
			cleanup()
			return nil, nil, eris.Wrap(err, "legacyio: create extract dir")
		}
		inner, err := extractExport(local, dir)
		if err != nil {
			_ = os.RemoveAll(dir)
			cleanup()
			return nil, nil, err
		}
		prev := cleanup
		cleanup = func() {
			_ = os.RemoveAll(dir)
			prev()
		}
		local = inner
	}

	format := opts.Format
	if format == "" {
		format = detectFormat(local)
	}

	switch format {
	case FormatNDJSON, FormatCSV, FormatXLSX:
		return &fileReader{path: local, format: format, opts: opts}, cleanup, nil
	default:
		cleanup()
		return nil, nil, eris.Errorf("legacyio: unsupported format %q for %s", format, source)
	}
}

func remoteScheme(scheme string) bool {
	switch scheme {
	case "http", "https", "ftp":
		return true
	}
	return false
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ndjson", ".jsonl":
		return FormatNDJSON
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	}
	return ""
}

// fileReader reads one local export file in the detected format.
type fileReader struct {
	path   string
	format string
	opts   Options
}

func (f *fileReader) Read(ctx context.Context) ([]map[string]any, error) {
	switch f.format {
	case FormatXLSX:
		return ReadXLSX(ctx, f.path, f.opts.Sheet)
	case FormatCSV, FormatNDJSON:
		file, err := os.Open(f.path)
		if err != nil {
			return nil, eris.Wrapf(err, "legacyio: open %s", f.path)
		}
		defer file.Close()
		if f.format == FormatCSV {
			return ReadCSV(ctx, file, f.opts.Charset)
		}
		return ReadNDJSON(ctx, file)
	}
	return nil, eris.Errorf("legacyio: unsupported format %q", f.format)
}

// Batches slices rows into replay batches of batchSize starting at
// startOffset, mirroring resumable backfill runs over large exports.
func Batches(rows []map[string]any, startOffset, batchSize int) [][]map[string]any {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if startOffset < 0 {
		startOffset = 0
	}

	var batches [][]map[string]any
	for i := startOffset; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, rows[i:end])
	}
	return batches
}
