package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/gitstore"
)

// CloneOptions configures a remote clone source.
type CloneOptions struct {
	URL string
	// SubPath locates the package inside the repository, with forward
	// slashes regardless of host OS.
	SubPath string
	Ref     string
	Token   string
	// TempRoot is where the clone directory is created. Empty means the
	// system temp dir.
	TempRoot string
	Logger   *zap.SugaredLogger
}

// Clone is a board package checked out from a git repository into a private
// temporary directory. Version and metadata come from a Directory rooted at
// the package path inside the clone.
type Clone struct {
	dir     *Directory
	tempDir string
	commit  string
	logger  *zap.SugaredLogger
	once    sync.Once
}

// NewClone clones opts.URL and reads the package version. Errors reaching
// the repository wrap domain.ErrSourceUnavailable. Nothing is left on disk
// when NewClone fails.
func NewClone(ctx context.Context, opts CloneOptions) (*Clone, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	rel, err := subPath(opts.SubPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, opts.URL, err)
	}

	tempDir, err := os.MkdirTemp(opts.TempRoot, "bpt-clone-")
	if err != nil {
		return nil, fmt.Errorf("%w: creating clone directory: %v", domain.ErrSourceUnavailable, err)
	}
	c := &Clone{tempDir: tempDir, logger: opts.Logger}

	if err := c.clone(ctx, opts, rel); err != nil {
		_ = c.Release()
		return nil, err
	}
	return c, nil
}

func (c *Clone) clone(ctx context.Context, opts CloneOptions, rel string) error {
	cfg := gitstore.Config{
		RepoURL:   opts.URL,
		Ref:       opts.Ref,
		LocalPath: c.tempDir,
		Token:     opts.Token,
		Logger:    opts.Logger,
	}
	if gitstore.IsRemoteURL(opts.URL) {
		cfg.Depth = 1
	}
	store, err := gitstore.New(cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	if err := store.Clone(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrSourceUnavailable, opts.URL, err)
	}
	c.commit = store.CurrentCommit()

	dir, err := NewDirectory(filepath.Join(c.tempDir, rel), fmt.Sprintf("git: %s", opts.URL))
	if err != nil {
		return fmt.Errorf("%s: %w", opts.URL, err)
	}
	c.dir = dir
	return nil
}

// subPath converts a forward-slash repository path to a host path relative
// to the clone root.
func subPath(p string) (string, error) {
	if p == "" {
		return ".", nil
	}
	if !domain.IsContainedPath(p) {
		return "", fmt.Errorf("repository path %q must be relative and stay inside the repository", p)
	}
	return filepath.Join(strings.Split(path.Clean(p), "/")...), nil
}

func (c *Clone) Version() string { return c.dir.Version() }
func (c *Clone) Origin() string  { return c.dir.Origin() }
func (c *Clone) Path() string    { return c.dir.Path() }

// Commit returns the checked out commit hash.
func (c *Clone) Commit() string { return c.commit }

// TempDir returns the directory holding the clone.
func (c *Clone) TempDir() string { return c.tempDir }

// Release removes the clone directory. Removal failures are logged, not
// returned.
func (c *Clone) Release() error {
	c.once.Do(func() {
		c.logger.Debugw("deleting temporary directory", "path", c.tempDir)
		if err := os.RemoveAll(c.tempDir); err != nil {
			c.logger.Warnw("failed to delete temporary directory", "path", c.tempDir, "error", err)
		}
	})
	return nil
}
