package runner

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Discover returns every file below root whose extension is in extensions,
// compared case-insensitively. Each directory lists its own files, by name,
// before descending into its subdirectories. Unreadable directories are
// logged and skipped.
func Discover(fs afero.Fs, root string, extensions []string, logger *slog.Logger) []string {
	want := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		want[strings.ToLower(ext)] = struct{}{}
	}

	var files []string
	var walk func(dir string)
	walk = func(dir string) {
		entries, err := afero.ReadDir(fs, dir)
		if err != nil {
			if logger != nil {
				logger.Warn("cannot read directory", "path", dir, "err", err)
			}
			return
		}

		var subdirs []string
		for _, entry := range entries {
			path := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				subdirs = append(subdirs, path)
				continue
			}
			if _, ok := want[strings.ToLower(filepath.Ext(path))]; ok {
				files = append(files, path)
			}
		}
		for _, sub := range subdirs {
			walk(sub)
		}
	}
	walk(root)

	return files
}
