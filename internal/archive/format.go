package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Format is a compressed tar flavour, named by its file extension.
type Format string

const (
	TarBz2 Format = "tar.bz2"
	TarGz  Format = "tar.gz"
	TarXz  Format = "tar.xz"
	TarZst Format = "tar.zst"
)

// Formats lists the supported formats, default first.
var Formats = []Format{TarBz2, TarGz, TarXz, TarZst}

// ParseFormat accepts a format name with or without a leading dot. Empty
// selects tar.bz2.
func ParseFormat(s string) (Format, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	if s == "" {
		return TarBz2, nil
	}
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported archive format %q", s)
}

// Ext returns the extension including the leading dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// RootName strips the format extension from an archive file name. Archives
// unpack into a directory of that name.
func (f Format) RootName(filename string) string {
	if strings.HasSuffix(strings.ToLower(filename), f.Ext()) {
		return filename[:len(filename)-len(f.Ext())]
	}
	return strings.TrimSuffix(filename, ".tar")
}

func (f Format) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch f {
	case TarBz2:
		return bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	case TarGz:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case TarXz:
		return xz.NewWriter(w)
	case TarZst:
		return zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedBestCompression),
			zstd.WithEncoderConcurrency(1),
		)
	default:
		return nil, fmt.Errorf("unsupported archive format %q", f)
	}
}
