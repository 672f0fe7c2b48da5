package legacyio

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// maxLineBytes bounds a single NDJSON line. Legacy raw payloads can be
// large but a line past this size is corrupt, not data.
const maxLineBytes = 16 * 1024 * 1024

// ReadNDJSON decodes newline-delimited JSON rows. Blank lines are
// skipped; malformed lines are logged with their line number and
// dropped, so one bad line never aborts an export.
func ReadNDJSON(ctx context.Context, r io.Reader) ([]map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var rows []map[string]any
	lineNum := 0
	malformed := 0

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "legacyio: ndjson read cancelled")
		}
		lineNum++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var row map[string]any
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			malformed++
			zap.L().Warn("malformed ndjson line skipped",
				zap.Int("line", lineNum),
				zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "legacyio: scan ndjson")
	}

	if malformed > 0 {
		zap.L().Warn("ndjson export had malformed lines",
			zap.Int("malformed", malformed),
			zap.Int("rows", len(rows)))
	}
	return rows, nil
}

// NDJSONReader reads an NDJSON stream through the Reader interface.
type NDJSONReader struct {
	R io.Reader
}

func (n *NDJSONReader) Read(ctx context.Context) ([]map[string]any, error) {
	return ReadNDJSON(ctx, n.R)
}
