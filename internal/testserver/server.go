// Package testserver serves a board index directory over plain HTTP so the
// Arduino IDE can install packages from the local machine before they are
// published.
package testserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/index"
	"github.com/boardindex/bpt/internal/middleware"
)

// TestIndexName is the index file the server writes and serves. The IDE only
// accepts index files named package_<name>_index.json.
const TestIndexName = "package_test_index.json"

// Defaults
const (
	DefaultURLTransform = "adafruit.github.io/arduino-board-index"
	DefaultPort         = 8000
	ShutdownTimeout     = 30 * time.Second
)

// Config holds test server settings
type Config struct {
	// Index is the loaded source index; it is copied, never modified.
	Index *index.Index
	// IndexPath is the source index file. Its directory is served.
	IndexPath string
	// URLTransform is the host and path prefix replaced by localhost:<port>.
	URLTransform string
	// Port 0 picks a free port.
	Port   int
	Logger *zap.SugaredLogger
	Out    io.Writer
	// OnReady is called with the listening address once the test index is
	// in place.
	OnReady func(addr string)
}

// Transforms returns the URL rewrites that point an index at a local server.
func Transforms(urlTransform string, port int) []domain.URLTransform {
	return []domain.URLTransform{
		{Match: "https://", Replace: "http://"},
		{Match: urlTransform, Replace: "localhost:" + strconv.Itoa(port)},
	}
}

// Run writes the test index and serves the index directory until ctx is
// cancelled or the server fails. The test index is removed however Run
// returns.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Index == nil {
		return errors.New("index is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	logger := cfg.Logger

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", cfg.Port, err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	dir := filepath.Dir(cfg.IndexPath)
	testIndex := filepath.Join(dir, TestIndexName)

	served := cfg.Index.Clone()
	rewritten, err := served.RewriteURLs(Transforms(cfg.URLTransform, port))
	if err != nil {
		return err
	}
	if err := served.WriteFile(testIndex); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(testIndex); err != nil && !os.IsNotExist(err) {
			logger.Warnw("failed to remove test index", "path", testIndex, "error", err)
		}
	}()

	state := State{
		IndexFile:   TestIndexName,
		SourceIndex: cfg.IndexPath,
		StartedAt:   time.Now().UTC(),
	}
	for _, name := range served.PackageNames() {
		platforms, _ := served.Platforms(name, "")
		state.PackageCount++
		state.PlatformCount += len(platforms)
	}
	middleware.IndexPlatforms.Set(float64(state.PlatformCount))

	srv := &http.Server{
		Handler: middleware.Chain(NewRouter(RouterConfig{
			Dir:    dir,
			State:  state,
			Logger: logger,
		}), logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	logger.Infow("test server listening",
		"port", port,
		"dir", dir,
		"rewritten_urls", rewritten,
	)
	fmt.Fprintf(cfg.Out, "Source board index file: %s\n", cfg.IndexPath)
	fmt.Fprintf(cfg.Out, "Test server listening at: http://localhost:%d\n", port)
	fmt.Fprintf(cfg.Out, "Configure Arduino to use the following board package URL:\n")
	fmt.Fprintf(cfg.Out, "  http://localhost:%d/%s\n", port, TestIndexName)
	if cfg.OnReady != nil {
		cfg.OnReady(ln.Addr().String())
	}

	select {
	case <-ctx.Done():
		logger.Infow("shutdown requested")
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Infow("test server stopped")
	return nil
}
