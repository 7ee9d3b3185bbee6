// Package fsutil holds file helpers shared by the writers of run outputs.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const maxNameLen = 128

// SafeName joins identifiers into a file name. Characters other than ASCII
// letters, digits, dot, underscore and dash become a single underscore, and
// the result is capped at 128 bytes.
func SafeName(parts ...string) string {
	var b strings.Builder
	lastUnderscore := false
	for i, p := range parts {
		if i > 0 && !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
		for _, r := range p {
			if b.Len() >= maxNameLen {
				break
			}
			switch {
			case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
				r == '.' || r == '-':
				b.WriteRune(r)
				lastUnderscore = false
			default:
				if !lastUnderscore {
					b.WriteByte('_')
					lastUnderscore = true
				}
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// WriteFileAtomic writes path through a temporary file in the same
// directory and renames it into place, so readers never see a partial file.
// The temporary file is removed when write fails.
func WriteFileAtomic(path string, write func(io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Chmod(0644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
