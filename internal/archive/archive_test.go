package archive

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/testutil"
)

var sampleTree = map[string]string{
	"platform.txt":         "name=Sample\nversion=1.5.0\n",
	"boards.txt":           "uno.name=Uno\n",
	"cores/arduino/main.c": "int main(void) { return 0; }\n",
	".git/HEAD":            "ref: refs/heads/main\n",
	"variants/.git":        "gitdir: ../.git/modules/variants\n",
	"variants/std/pins.h":  "#define PINS 20\n",
	"tools/.gitignore":     "*.o\n",
	".github/workflows/ci": "on: push\n",
}

func readEntries(t *testing.T, format Format, path string) map[string]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case TarBz2:
		r = bzip2.NewReader(f)
	case TarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		defer gz.Close()
		r = gz
	case TarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			t.Fatalf("xz reader: %v", err)
		}
		r = xr
	case TarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			t.Fatalf("zstd reader: %v", err)
		}
		defer zr.Close()
		r = zr
	}

	entries := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading %s: %v", hdr.Name, err)
		}
		entries[hdr.Name] = string(body)
	}
	return entries
}

func TestArchive_Formats(t *testing.T) {
	for _, format := range Formats {
		t.Run(string(format), func(t *testing.T) {
			// Arrange
			src := t.TempDir()
			testutil.WriteFiles(t, src, sampleTree)
			out := filepath.Join(t.TempDir(), "sample-1.5.0"+format.Ext())

			// Act
			result, err := New(format, nil).Archive(src, out)

			// Assert
			if err != nil {
				t.Fatalf("Archive() error = %v", err)
			}
			if result.Filename != "sample-1.5.0"+format.Ext() {
				t.Errorf("Filename = %q", result.Filename)
			}

			entries := readEntries(t, format, out)
			var names []string
			for name := range entries {
				names = append(names, name)
				if !strings.HasPrefix(name, "sample-1.5.0/") {
					t.Errorf("entry %q outside root directory", name)
				}
				for _, part := range strings.Split(name, "/") {
					if Excluded(part) {
						t.Errorf("entry %q should be excluded", name)
					}
				}
			}
			sort.Strings(names)

			if got := entries["sample-1.5.0/cores/arduino/main.c"]; got != sampleTree["cores/arduino/main.c"] {
				t.Errorf("main.c content = %q (entries %v)", got, names)
			}
			if _, ok := entries["sample-1.5.0/variants/std/pins.h"]; !ok {
				t.Errorf("pins.h missing (entries %v)", names)
			}
		})
	}
}

func TestArchive_DigestMatchesFile(t *testing.T) {
	src := t.TempDir()
	testutil.WriteFiles(t, src, sampleTree)
	out := filepath.Join(t.TempDir(), "boards", "sample-1.5.0.tar.bz2")

	result, err := New(TarBz2, nil).Archive(src, out)
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	sum := sha256.Sum256(data)
	if want := hex.EncodeToString(sum[:]); result.SHA256 != want {
		t.Errorf("SHA256 = %s, want %s", result.SHA256, want)
	}
	if result.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", result.Size, len(data))
	}
	if result.Path != out {
		t.Errorf("Path = %q, want %q", result.Path, out)
	}
}

func TestArchive_Deterministic(t *testing.T) {
	src := t.TempDir()
	testutil.WriteFiles(t, src, sampleTree)
	dir := t.TempDir()

	a := New(TarBz2, nil)
	first, err := a.Archive(src, filepath.Join(dir, "one", "sample-1.5.0.tar.bz2"))
	if err != nil {
		t.Fatalf("first Archive() error = %v", err)
	}
	second, err := a.Archive(src, filepath.Join(dir, "two", "sample-1.5.0.tar.bz2"))
	if err != nil {
		t.Fatalf("second Archive() error = %v", err)
	}

	if first.SHA256 != second.SHA256 {
		t.Errorf("digests differ: %s vs %s", first.SHA256, second.SHA256)
	}
}

func TestArchive_DigestChangesWithContent(t *testing.T) {
	src := t.TempDir()
	testutil.WriteFiles(t, src, sampleTree)
	dir := t.TempDir()
	a := New(TarBz2, nil)

	before, err := a.Archive(src, filepath.Join(dir, "a", "sample-1.5.0.tar.bz2"))
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	testutil.WriteFiles(t, src, map[string]string{"boards.txt": "uno.name=Uno!\n"})

	after, err := a.Archive(src, filepath.Join(dir, "b", "sample-1.5.0.tar.bz2"))
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if before.SHA256 == after.SHA256 {
		t.Error("digest unchanged after editing a file")
	}
}

func TestArchive_UnwritableTarget(t *testing.T) {
	src := t.TempDir()
	testutil.WriteFiles(t, src, sampleTree)

	// A regular file where the output directory should be
	blocker := filepath.Join(t.TempDir(), "boards")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(TarBz2, nil).Archive(src, filepath.Join(blocker, "sample-1.5.0.tar.bz2"))
	if !errors.Is(err, domain.ErrIOWrite) {
		t.Errorf("error = %v, want ErrIOWrite", err)
	}
}

func TestArchive_NoPartialFileOnFailure(t *testing.T) {
	out := t.TempDir()
	_, err := New(TarBz2, nil).Archive(filepath.Join(out, "missing"), filepath.Join(out, "x.tar.bz2"))
	if err == nil {
		t.Fatal("expected error for missing source")
	}

	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Errorf("output dir not empty: %v", entries)
	}
}

func TestArchive_Progress(t *testing.T) {
	src := t.TempDir()
	testutil.WriteFiles(t, src, sampleTree)

	var progress bytes.Buffer
	a := New(TarGz, nil)
	a.Progress = &progress

	if _, err := a.Archive(src, filepath.Join(t.TempDir(), "sample-1.5.0.tar.gz")); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	size, err := TreeSize(src)
	if err != nil {
		t.Fatalf("TreeSize() error = %v", err)
	}
	if int64(progress.Len()) != size {
		t.Errorf("progress saw %d bytes, TreeSize = %d", progress.Len(), size)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: TarBz2},
		{in: ".tar.gz", want: TarGz},
		{in: "TAR.XZ", want: TarXz},
		{in: "tar.zst", want: TarZst},
		{in: "zip", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRootName(t *testing.T) {
	if got := TarBz2.RootName("adafruit-avr-1.4.9.tar.bz2"); got != "adafruit-avr-1.4.9" {
		t.Errorf("RootName = %q", got)
	}
	if got := TarXz.RootName("x-1.0.0.TAR.XZ"); got != "x-1.0.0" {
		t.Errorf("RootName = %q", got)
	}
}
