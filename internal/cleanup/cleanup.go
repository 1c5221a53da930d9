// Package cleanup collects resources that must be released when a command
// ends, whatever way it ends.
package cleanup

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Releaser is anything holding a resource that must be given back.
type Releaser interface {
	Release() error
}

// ReleaseFunc adapts a function to Releaser.
type ReleaseFunc func() error

// Release calls f.
func (f ReleaseFunc) Release() error { return f() }

type entry struct {
	name string
	r    Releaser
}

// Guard releases registered resources in reverse registration order.
// Release failures are logged and never returned: cleanup must not replace
// the outcome of the command it follows.
type Guard struct {
	mu      sync.Mutex
	entries []entry
	logger  *zap.SugaredLogger
}

// New creates an empty guard.
func New(logger *zap.SugaredLogger) *Guard {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Guard{logger: logger}
}

// Add registers r under a descriptive name.
func (g *Guard) Add(name string, r Releaser) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, entry{name: name, r: r})
}

// Len returns the number of resources still held.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Release releases every registered resource exactly once. Calling it again
// only releases resources added since the previous call.
func (g *Guard) Release() {
	g.mu.Lock()
	entries := g.entries
	g.entries = nil
	g.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := release(e.r); err != nil {
			g.logger.Warnw("cleanup failed", "resource", e.name, "error", err)
			continue
		}
		g.logger.Debugw("released", "resource", e.name)
	}
}

func release(r Releaser) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic during release: %v", p)
		}
	}()
	return r.Release()
}
