package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSafeName(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"plain", []string{"m1", "Cell_1"}, "m1_Cell_1"},
		{"slashes", []string{"plate/A01", "Cell 3"}, "plate_A01_Cell_3"},
		{"traversal", []string{"../../etc", "passwd"}, "etc_passwd"},
		{"empty", []string{""}, "unknown"},
		{"only separators", []string{"//", "  "}, "unknown"},
		{"dots kept", []string{"movie.v2"}, "movie.v2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeName(tt.parts...); got != tt.want {
				t.Errorf("SafeName(%q) = %q, want %q", tt.parts, got, tt.want)
			}
		})
	}

	long := SafeName(strings.Repeat("a", 300))
	if len(long) != maxNameLen {
		t.Errorf("len(SafeName(300 chars)) = %d, want %d", len(long), maxNameLen)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.csv")

	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "a,b\n")
		return err
	})
	if err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "a,b\n" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteFileAtomic_FailureKeepsOld(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cells.csv")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old" {
		t.Errorf("content = %q, want old", data)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
