package gitstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

// Store is a working copy of a remote repository on local disk
type Store struct {
	config        Config
	repo          *git.Repository
	currentCommit string
	logger        *zap.SugaredLogger
}

// Config holds git store configuration
type Config struct {
	RepoURL string
	// Ref is a branch, tag or full reference name. Empty clones the remote HEAD.
	Ref       string
	LocalPath string
	// Depth limits history. Zero clones full history.
	Depth int
	// Token, when set, is sent as HTTP basic auth password.
	Token  string
	Logger *zap.SugaredLogger
}

// New creates a new git store instance
func New(cfg Config) (*Store, error) {
	if cfg.RepoURL == "" {
		return nil, errors.New("repo URL is required")
	}
	if cfg.LocalPath == "" {
		return nil, errors.New("local path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	return &Store{
		config: cfg,
		logger: cfg.Logger,
	}, nil
}

// Clone clones the repository into LocalPath. LocalPath must be empty or
// absent.
func (s *Store) Clone(ctx context.Context) error {
	s.logger.Infow("cloning repository",
		"url", s.config.RepoURL,
		"ref", s.config.Ref,
		"path", s.config.LocalPath,
	)

	var lastErr error
	for _, ref := range candidateRefs(s.config.Ref) {
		repo, err := git.PlainCloneContext(ctx, s.config.LocalPath, false, s.cloneOptions(ref))
		if err == nil {
			s.repo = repo
			break
		}
		lastErr = err
		if ctx.Err() != nil || !isMissingRef(err) {
			break
		}
		// A failed attempt may leave a partial .git behind
		if err := resetDir(s.config.LocalPath); err != nil {
			return fmt.Errorf("failed to reset clone directory: %w", err)
		}
	}
	if s.repo == nil {
		return fmt.Errorf("clone failed: %w", lastErr)
	}

	if err := s.updateCurrentCommit(); err != nil {
		return fmt.Errorf("failed to get current commit: %w", err)
	}

	s.logger.Infow("clone completed", "url", s.config.RepoURL, "commit", s.currentCommit)
	return nil
}

func (s *Store) cloneOptions(ref plumbing.ReferenceName) *git.CloneOptions {
	opts := &git.CloneOptions{
		URL:           s.config.RepoURL,
		Auth:          s.getAuth(),
		Depth:         s.config.Depth,
		ReferenceName: ref,
		SingleBranch:  ref != "",
		Tags:          git.NoTags,
	}
	if ref.IsTag() {
		opts.Tags = git.AllTags
	}
	return opts
}

// candidateRefs expands a short ref into the reference names to try, branch
// first. An empty ref yields the remote HEAD.
func candidateRefs(ref string) []plumbing.ReferenceName {
	switch {
	case ref == "":
		return []plumbing.ReferenceName{""}
	case strings.HasPrefix(ref, "refs/"):
		return []plumbing.ReferenceName{plumbing.ReferenceName(ref)}
	default:
		return []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(ref),
			plumbing.NewTagReferenceName(ref),
		}
	}
}

func isMissingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.Is(err, plumbing.ErrReferenceNotFound) || errors.As(err, &noMatch)
}

func resetDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// CurrentCommit returns the current HEAD commit SHA
func (s *Store) CurrentCommit() string {
	return s.currentCommit
}

// RepoURL returns the configured repository URL
func (s *Store) RepoURL() string {
	return s.config.RepoURL
}

// LocalPath returns the working copy directory
func (s *Store) LocalPath() string {
	return s.config.LocalPath
}

func (s *Store) getAuth() transport.AuthMethod {
	if s.config.Token == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: "x-access-token",
		Password: s.config.Token,
	}
}

func (s *Store) updateCurrentCommit() error {
	ref, err := s.repo.Head()
	if err != nil {
		return err
	}
	s.currentCommit = ref.Hash().String()
	return nil
}

// IsRemoteURL reports whether url names a network remote rather than a
// repository on the local filesystem.
func IsRemoteURL(url string) bool {
	if strings.HasPrefix(url, "file://") {
		return false
	}
	if strings.Contains(url, "://") {
		return true
	}
	// scp-like syntax: user@host:path
	at := strings.Index(url, "@")
	colon := strings.Index(url, ":")
	return at > 0 && colon > at
}
