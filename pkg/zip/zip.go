package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ArchiveFiles streams the named files into a zip archive written to w,
// using each file's base name as the entry name. Returns the number of
// entries written. A file that disappears between listing and archiving
// is skipped.
func ArchiveFiles(w io.Writer, paths []string) (int, error) {
	zw := zip.NewWriter(w)
	count := 0
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return count, fmt.Errorf("open %s: %w", path, err)
		}
		entry, err := zw.Create(filepath.Base(path))
		if err != nil {
			f.Close()
			return count, fmt.Errorf("create entry %s: %w", path, err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			return count, fmt.Errorf("write entry %s: %w", path, err)
		}
		f.Close()
		count++
	}
	if err := zw.Close(); err != nil {
		return count, err
	}
	return count, nil
}
