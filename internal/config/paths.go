package config

import (
	"os"
	"path/filepath"
	"strings"
)

// logPath anchors a relative log directory at the directory holding the
// binary, so a service manager's working directory does not move the files.
func logPath(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" || filepath.IsAbs(dir) {
		return filepath.Clean(dir)
	}
	return filepath.Join(binaryDir(), dir)
}

func binaryDir() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}
