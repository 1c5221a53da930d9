// Package source resolves where a board package lives on disk and which
// version it carries.
package source

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/boardindex/bpt/internal/domain"
)

// PlatformFile is the metadata file every board package carries at its root.
const PlatformFile = "platform.txt"

// Key is case-insensitive, value runs to end of line or a '#' comment.
var versionLine = regexp.MustCompile(`(?i)^version=([^#]*)`)

// Source is a materialized board package.
type Source interface {
	// Version is the version declared in platform.txt.
	Version() string
	// Origin describes where the package came from.
	Origin() string
	// Path is the package root on local disk.
	Path() string
	// Release frees anything the source holds. Safe to call more than once.
	Release() error
}

// ReadPlatformVersion extracts the version from dir/platform.txt. When
// several version lines are present the last one wins.
func ReadPlatformVersion(dir string) (string, error) {
	name := filepath.Join(dir, PlatformFile)
	f, err := os.Open(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMissingVersion, err)
	}
	defer f.Close()

	version := ""
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := versionLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if v := strings.TrimSpace(m[1]); v != "" {
			version = v
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", domain.ErrMissingVersion, name, err)
	}
	if version == "" {
		return "", fmt.Errorf("%w: %s", domain.ErrMissingVersion, name)
	}
	return version, nil
}
