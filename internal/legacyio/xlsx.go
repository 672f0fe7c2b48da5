package legacyio

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadXLSX reads one sheet of a spreadsheet export: first row is the
// header, remaining rows become header-keyed maps. sheet selects by
// name; empty takes the first sheet.
func ReadXLSX(ctx context.Context, path, sheet string) ([]map[string]any, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "legacyio: open xlsx %s", path)
	}

	s, err := pickSheet(f, sheet)
	if err != nil {
		return nil, err
	}
	if len(s.Rows) == 0 {
		return nil, nil
	}

	header := cellStrings(s.Rows[0])

	var rows []map[string]any
	for _, sheetRow := range s.Rows[1:] {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "legacyio: xlsx read cancelled")
		}

		cells := cellStrings(sheetRow)
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(cells) {
				row[col] = cells[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		s, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("legacyio: sheet %q not found", name)
		}
		return s, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("legacyio: xlsx file has no sheets")
	}
	return f.Sheets[0], nil
}

func cellStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for i, cell := range row.Cells {
		cells[i] = cell.String()
	}
	return cells
}

// XLSXReader reads a spreadsheet export through the Reader interface.
type XLSXReader struct {
	Path  string
	Sheet string
}

func (x *XLSXReader) Read(ctx context.Context) ([]map[string]any, error) {
	return ReadXLSX(ctx, x.Path, x.Sheet)
}
