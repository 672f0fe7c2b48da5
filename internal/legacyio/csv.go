package legacyio

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

// ReadCSV decodes a header-driven CSV export into rows keyed by the
// header columns. charset optionally names the file encoding (e.g.
// "latin1" for old database dumps); empty means UTF-8.
func ReadCSV(ctx context.Context, r io.Reader, charset string) ([]map[string]any, error) {
	if charset != "" {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "legacyio: unsupported charset %q", charset)
		}
		r = enc.NewDecoder().Reader(r)
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // legacy exports have ragged rows

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "legacyio: read csv header")
	}

	var rows []map[string]any
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "legacyio: csv read cancelled")
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "legacyio: read csv row")
		}

		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CSVReader reads a CSV stream through the Reader interface.
type CSVReader struct {
	R       io.Reader
	Charset string
}

func (c *CSVReader) Read(ctx context.Context) ([]map[string]any, error) {
	return ReadCSV(ctx, c.R, c.Charset)
}
