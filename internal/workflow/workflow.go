// Package workflow implements the two reconciliation flows: checking local
// packages against the published index and publishing a new package
// version into it.
package workflow

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/boardindex/bpt/internal/cleanup"
	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/index"
	"github.com/boardindex/bpt/internal/registry"
	"github.com/boardindex/bpt/internal/versions"
)

// ProgressFunc returns a writer that is fed the bytes of every archived
// file. total is the number of bytes to expect.
type ProgressFunc func(total int64, description string) io.Writer

// Workflow ties a registry and an index together for one command run.
type Workflow struct {
	Registry *registry.Registry
	Index    *index.Index
	// Guard receives every opened source. A nil guard releases sources
	// when the flow returns.
	Guard  *cleanup.Guard
	Logger *zap.SugaredLogger
	// Out receives the human-readable report.
	Out io.Writer
	// NewProgress, when set, reports archive progress.
	NewProgress ProgressFunc
	// ArchiveModTime overrides the timestamp stamped into archives.
	ArchiveModTime time.Time
}

func (w *Workflow) logger() *zap.SugaredLogger {
	if w.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return w.Logger
}

func (w *Workflow) out() io.Writer {
	if w.Out == nil {
		return io.Discard
	}
	return w.Out
}

func (w *Workflow) printf(format string, args ...any) {
	fmt.Fprintf(w.out(), format+"\n", args...)
}

// guard returns the workflow guard, or a private one with the function
// that releases it.
func (w *Workflow) guard() (*cleanup.Guard, func()) {
	if w.Guard != nil {
		return w.Guard, func() {}
	}
	g := cleanup.New(w.logger())
	return g, g.Release
}

// latestPublished returns the greatest published version of (parent, name).
// found is false when the index has no such platform.
func (w *Workflow) latestPublished(d domain.Descriptor) (latest string, found bool, err error) {
	platforms, err := w.Index.Platforms(d.Parent, d.Name)
	if err != nil {
		return "", false, err
	}
	if len(platforms) == 0 {
		return "", false, nil
	}
	published := make([]string, len(platforms))
	for i, p := range platforms {
		published[i] = p.Version
	}
	latest, err = versions.Max(published)
	if err != nil {
		return "", false, err
	}
	return latest, true, nil
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, domain.ErrStaleUpdate):
		return "stale"
	case errors.Is(err, domain.ErrTemplate):
		return "template_error"
	case errors.Is(err, domain.ErrUnknownParent):
		return "unknown_parent"
	default:
		return "error"
	}
}
