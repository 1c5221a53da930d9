// Package archive packs a board package directory into a compressed tar
// whose single root directory is named after the archive file.
package archive

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/boardindex/bpt/internal/domain"
)

// DefaultModTime is stamped on every entry so that archiving the same tree
// twice yields the same bytes.
var DefaultModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Excluded reports whether a directory entry is git metadata (.git,
// .gitignore, .github and friends) that never ships in an archive.
func Excluded(name string) bool {
	return strings.HasPrefix(name, ".git")
}

// Archiver writes package archives.
type Archiver struct {
	Format Format
	// ModTime overrides DefaultModTime when non-zero.
	ModTime time.Time
	// Progress, when set, receives a copy of every archived file's bytes.
	Progress io.Writer
	Logger   *zap.SugaredLogger
}

// New returns an archiver for the given format.
func New(format Format, logger *zap.SugaredLogger) *Archiver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Archiver{Format: format, Logger: logger}
}

// Archive packs srcDir into outPath. The file appears at outPath only once
// it is complete. Write failures wrap domain.ErrIOWrite.
func (a *Archiver) Archive(srcDir, outPath string) (domain.ArchiveResult, error) {
	format := a.Format
	if format == "" {
		format = TarBz2
	}
	info, err := os.Stat(srcDir)
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("archive source: %w", err)
	}
	if !info.IsDir() {
		return domain.ArchiveResult{}, fmt.Errorf("archive source %s is not a directory", srcDir)
	}

	outDir := filepath.Dir(outPath)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("%w: creating %s: %v", domain.ErrIOWrite, outDir, err)
	}
	tmp, err := os.CreateTemp(outDir, "."+filepath.Base(outPath)+".tmp-*")
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	root := format.RootName(filepath.Base(outPath))
	if err := a.write(io.MultiWriter(tmp, hash), format, srcDir, root); err != nil {
		return domain.ArchiveResult{}, err
	}
	if err := tmp.Sync(); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	committed = true

	stat, err := os.Stat(outPath)
	if err != nil {
		return domain.ArchiveResult{}, fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	result := domain.ArchiveResult{
		Path:     outPath,
		Filename: filepath.Base(outPath),
		Size:     stat.Size(),
		SHA256:   hex.EncodeToString(hash.Sum(nil)),
	}
	a.logger().Infow("archive written",
		"path", result.Path,
		"size", result.Size,
		"sha256", result.SHA256,
	)
	return result, nil
}

func (a *Archiver) logger() *zap.SugaredLogger {
	if a.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return a.Logger
}

func (a *Archiver) modTime() time.Time {
	if a.ModTime.IsZero() {
		return DefaultModTime
	}
	return a.ModTime
}

func (a *Archiver) write(w io.Writer, format Format, srcDir, root string) error {
	cw, err := format.newWriter(w)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	tw := tar.NewWriter(cw)

	walkErr := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		if rel != "." && Excluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := root
		if rel != "." {
			name = path.Join(root, filepath.ToSlash(rel))
		}
		return a.addEntry(tw, p, name, d)
	})
	if walkErr != nil {
		return fmt.Errorf("%w: archiving %s: %v", domain.ErrIOWrite, srcDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	return nil
}

func (a *Archiver) addEntry(tw *tar.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	hdr := &tar.Header{
		Name:    name,
		ModTime: a.modTime(),
		Format:  tar.FormatGNU,
	}
	switch mode := info.Mode(); {
	case mode.IsDir():
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		hdr.Mode = 0o755
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(p)
		if err != nil {
			return err
		}
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = target
		hdr.Mode = 0o777
	case mode.IsRegular():
		hdr.Typeflag = tar.TypeReg
		hdr.Size = info.Size()
		hdr.Mode = 0o644
		if mode&0o111 != 0 {
			hdr.Mode = 0o755
		}
	default:
		a.logger().Debugw("skipping special file", "path", p, "mode", mode.String())
		return nil
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if hdr.Typeflag != tar.TypeReg {
		return nil
	}

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	if a.Progress != nil {
		r = io.TeeReader(f, a.Progress)
	}
	_, err = io.Copy(tw, r)
	return err
}

// TreeSize returns the number of file bytes Archive would pack from dir.
func TreeSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != dir && Excluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
