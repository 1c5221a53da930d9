// Package index holds the published board package index. The document is
// kept as raw JSON so that content the tool does not interpret survives a
// load/save cycle untouched.
package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/boardindex/bpt/internal/domain"
)

// Index is an in-memory package index document.
type Index struct {
	data    []byte
	parents map[string]int
	names   []string
	logger  *zap.SugaredLogger
}

// Load reads and parses the index file at path.
func Load(path string, logger *zap.SugaredLogger) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}
	idx, err := Parse(data, logger)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	return idx, nil
}

// Parse builds an index from JSON text.
func Parse(data []byte, logger *zap.SugaredLogger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := validateShape(data); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	idx := &Index{data: buf.Bytes(), logger: logger}
	idx.buildParents()
	return idx, nil
}

func (x *Index) buildParents() {
	x.parents = make(map[string]int)
	x.names = nil
	pos := -1
	gjson.GetBytes(x.data, "packages").ForEach(func(_, pkg gjson.Result) bool {
		pos++
		name := pkg.Get("name").String()
		if prev, ok := x.parents[name]; ok {
			x.logger.Warnw("duplicate package name in index, using the later entry",
				"package", name,
				"first", prev,
				"second", pos,
			)
		} else {
			x.names = append(x.names, name)
		}
		x.parents[name] = pos
		return true
	})
}

// PackageNames returns the parent package names in document order.
func (x *Index) PackageNames() []string {
	out := make([]string, len(x.names))
	copy(out, x.names)
	return out
}

func (x *Index) position(parent string) (int, error) {
	pos, ok := x.parents[parent]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownParent, parent)
	}
	return pos, nil
}

func platformsPath(pos int) string {
	return "packages." + strconv.Itoa(pos) + ".platforms"
}

// Platforms returns the platforms of parent in document order. A non-empty
// name keeps only platforms with exactly that name.
func (x *Index) Platforms(parent, name string) ([]domain.Platform, error) {
	pos, err := x.position(parent)
	if err != nil {
		return nil, err
	}

	var out []domain.Platform
	gjson.GetBytes(x.data, platformsPath(pos)).ForEach(func(_, p gjson.Result) bool {
		platform := domain.Platform{
			Name:    p.Get("name").String(),
			Version: p.Get("version").String(),
			URL:     p.Get("url").String(),
			Raw:     json.RawMessage(p.Raw),
		}
		if name == "" || platform.Name == name {
			out = append(out, platform)
		}
		return true
	})
	return out, nil
}

// AddPlatform appends a platform entry to parent. No uniqueness check is
// made; the entry is added even if an equal one exists.
func (x *Index) AddPlatform(parent string, raw []byte) error {
	pos, err := x.position(parent)
	if err != nil {
		return err
	}
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return fmt.Errorf("platform entry for %q is not a JSON object", parent)
	}

	var entry bytes.Buffer
	if err := json.Compact(&entry, raw); err != nil {
		return fmt.Errorf("platform entry for %q: %w", parent, err)
	}

	path := platformsPath(pos)
	var updated []byte
	if gjson.GetBytes(x.data, path).IsArray() {
		updated, err = sjson.SetRawBytes(x.data, path+".-1", entry.Bytes())
	} else {
		updated, err = sjson.SetRawBytes(x.data, path, append(append([]byte{'['}, entry.Bytes()...), ']'))
	}
	if err != nil {
		return fmt.Errorf("failed to append platform to %q: %w", parent, err)
	}
	x.data = updated
	return nil
}

type urlEdit struct {
	path string
	url  string
}

// RewriteURLs applies the transforms, in order, to every platform URL. Each
// transform replaces only the first case-insensitive occurrence of its
// Match. It returns the number of URLs that changed.
func (x *Index) RewriteURLs(transforms []domain.URLTransform) (int, error) {
	matchers := make([]*regexp.Regexp, len(transforms))
	for i, t := range transforms {
		if t.Match == "" {
			continue
		}
		matchers[i] = regexp.MustCompile("(?i)" + regexp.QuoteMeta(t.Match))
	}

	var edits []urlEdit
	i := -1
	gjson.GetBytes(x.data, "packages").ForEach(func(_, pkg gjson.Result) bool {
		i++
		j := -1
		pkg.Get("platforms").ForEach(func(_, p gjson.Result) bool {
			j++
			u := p.Get("url")
			if u.Type != gjson.String {
				return true
			}
			rewritten := u.String()
			for k, re := range matchers {
				if re == nil {
					continue
				}
				rewritten = replaceFirst(re, rewritten, transforms[k].Replace)
			}
			if rewritten != u.String() {
				edits = append(edits, urlEdit{
					path: platformsPath(i) + "." + strconv.Itoa(j) + ".url",
					url:  rewritten,
				})
			}
			return true
		})
		return true
	})

	for _, e := range edits {
		encoded, err := encodeString(e.url)
		if err != nil {
			return 0, err
		}
		updated, err := sjson.SetRawBytes(x.data, e.path, encoded)
		if err != nil {
			return 0, fmt.Errorf("failed to rewrite %s: %w", e.path, err)
		}
		x.data = updated
	}
	return len(edits), nil
}

func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + repl + s[loc[1]:]
}

func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Bytes serializes the document with two-space indentation and a trailing
// newline. Key order and scalar spelling are kept as loaded.
func (x *Index) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, x.data, "", "  "); err != nil {
		return nil, fmt.Errorf("failed to format index: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Clone returns an independent copy of the index.
func (x *Index) Clone() *Index {
	c := &Index{
		data:    bytes.Clone(x.data),
		parents: make(map[string]int, len(x.parents)),
		names:   x.PackageNames(),
		logger:  x.logger,
	}
	for k, v := range x.parents {
		c.parents[k] = v
	}
	return c
}

// WriteFile serializes the index to path atomically.
func (x *Index) WriteFile(path string) error {
	data, err := x.Bytes()
	if err != nil {
		return err
	}
	return WriteAtomic(path, data, 0o644)
}

// WriteAtomic writes data to a temp file next to path and renames it into
// place, so readers see either the old or the new content. Failures wrap
// domain.ErrIOWrite.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %v", domain.ErrIOWrite, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %v", domain.ErrIOWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: writing %s: %v", domain.ErrIOWrite, path, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: replacing %s: %v", domain.ErrIOWrite, path, err)
	}
	return nil
}
