package legacyio

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// extractExport pulls the single data file out of a zipped export into
// destDir and returns its path. Legacy dumps ship one export file per
// archive; anything else is rejected rather than guessed at.
func extractExport(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrapf(err, "legacyio: open archive %s", zipPath)
	}
	defer r.Close() //nolint:errcheck

	var files []*zip.File
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	if len(files) != 1 {
		return "", eris.Errorf("legacyio: archive %s holds %d files, want exactly one export", zipPath, len(files))
	}

	entry := files[0]
	// Base strips any archive-internal directories, which also rules out
	// path traversal through crafted entry names.
	destPath := filepath.Join(destDir, filepath.Base(entry.Name))

	rc, err := entry.Open()
	if err != nil {
		return "", eris.Wrapf(err, "legacyio: open archive entry %s", entry.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "legacyio: create extracted file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(destPath)
		return "", eris.Wrapf(err, "legacyio: extract %s", entry.Name)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return "", eris.Wrap(err, "legacyio: close extracted file")
	}

	return destPath, nil
}
