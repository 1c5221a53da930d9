package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/boardindex/bpt/internal/archive"
	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/index"
	"github.com/boardindex/bpt/internal/middleware"
	"github.com/boardindex/bpt/internal/signing"
	"github.com/boardindex/bpt/internal/versions"
)

// DefaultOutputDir is where archives go when no directory is given.
const DefaultOutputDir = "boards"

// PublishOptions selects the package to publish and where results go.
type PublishOptions struct {
	Name string
	// Force skips the check that the local version is newer than every
	// published one.
	Force       bool
	OutputIndex string
	OutputDir   string
	// SignKey is an armored OpenPGP private key. When set, a detached
	// signature is written next to the output index.
	SignKey        string
	SignPassphrase string
}

// PublishResult describes what a successful publish wrote.
type PublishResult struct {
	Descriptor    domain.Descriptor
	Archive       domain.ArchiveResult
	Platform      []byte
	IndexPath     string
	SignaturePath string
}

// Publish archives the named package and appends it to the index. Nothing
// is written to OutputIndex or OutputDir unless every step before the
// final commit succeeds.
func (w *Workflow) Publish(ctx context.Context, opts PublishOptions) (result *PublishResult, err error) {
	ctx, span := middleware.Tracer().Start(ctx, "update-index")
	span.SetAttributes(
		attribute.String("bpt.package", opts.Name),
		attribute.Bool("bpt.force", opts.Force),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			middleware.PublishTotal.WithLabelValues(errorStatus(err)).Inc()
		} else {
			middleware.PublishTotal.WithLabelValues("published").Inc()
		}
		span.End()
	}()

	if opts.OutputIndex == "" {
		return nil, fmt.Errorf("%w: output index path is required", domain.ErrConfig)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = DefaultOutputDir
	}

	guard, release := w.guard()
	defer release()

	log := w.logger().With("package", opts.Name)

	w.printf("Loading current packages from their origin repository/directory...")
	pkg, err := w.Registry.OpenOne(ctx, opts.Name, guard)
	if err != nil {
		return nil, err
	}
	d := pkg.Descriptor
	span.SetAttributes(attribute.String("bpt.version", d.Version))

	latest, found, err := w.latestPublished(d)
	if err != nil {
		return nil, fmt.Errorf("package %q: %w", d.Name, err)
	}
	if found && !opts.Force && versions.Compare(latest, d.Version) >= 0 {
		return nil, fmt.Errorf("%w: %s version %s is not newer than published %s; use --force to publish anyway",
			domain.ErrStaleUpdate, d.Name, d.Version, latest)
	}

	format, err := archive.ParseFormat(d.ArchiveExt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfig, err)
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %v", domain.ErrIOWrite, opts.OutputDir, err)
	}
	staging, err := os.MkdirTemp(opts.OutputDir, ".bpt-staging-")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIOWrite, err)
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			log.Warnw("failed to remove staging directory", "path", staging, "error", rmErr)
		}
	}()

	filename := d.ArchiveName()
	arch := archive.New(format, log)
	arch.ModTime = w.ArchiveModTime
	if w.NewProgress != nil {
		if total, err := archive.TreeSize(pkg.Source.Path()); err == nil {
			arch.Progress = w.NewProgress(total, "archiving "+filename)
		}
	}
	staged, err := arch.Archive(pkg.Source.Path(), filepath.Join(staging, filename))
	if err != nil {
		return nil, fmt.Errorf("package %q: %w", d.Name, err)
	}

	platform, err := renderPlatform(d.Template, map[string]string{
		"version":  d.Version,
		"filename": filename,
		"sha256":   staged.SHA256,
		"size":     strconv.FormatInt(staged.Size, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("package %q: %w", d.Name, err)
	}

	updated := w.Index.Clone()
	if err := updated.AddPlatform(d.Parent, platform); err != nil {
		return nil, fmt.Errorf("package %q: %w", d.Name, err)
	}
	data, err := updated.Bytes()
	if err != nil {
		return nil, err
	}

	var signature []byte
	if opts.SignKey != "" {
		if signature, err = signIndex(data, opts.SignKey, opts.SignPassphrase); err != nil {
			return nil, err
		}
	}

	// Commit. An existing signature cannot match the new index.
	sigPath := opts.OutputIndex + signing.SignatureSuffix
	if err := os.Remove(sigPath); err == nil {
		log.Infow("removed previous index signature", "path", sigPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: removing previous signature %s: %v", domain.ErrIOWrite, sigPath, err)
	}

	archivePath := filepath.Join(opts.OutputDir, filename)
	if err := os.Rename(staged.Path, archivePath); err != nil {
		return nil, fmt.Errorf("%w: moving archive into %s: %v", domain.ErrIOWrite, opts.OutputDir, err)
	}
	staged.Path = archivePath
	w.printf("Created board package archive: %s", archivePath)
	middleware.ArchiveBytes.Observe(float64(staged.Size))

	if err := index.WriteAtomic(opts.OutputIndex, data, 0o644); err != nil {
		return nil, err
	}
	w.Index = updated
	w.printf("Wrote updated board index JSON: %s", opts.OutputIndex)

	result = &PublishResult{
		Descriptor: d,
		Archive:    staged,
		Platform:   platform,
		IndexPath:  opts.OutputIndex,
	}
	if signature != nil {
		if err := index.WriteAtomic(sigPath, signature, 0o644); err != nil {
			return nil, fmt.Errorf("index written unsigned: %w", err)
		}
		result.SignaturePath = sigPath
		w.printf("Wrote index signature: %s", result.SignaturePath)
	}

	log.Infow("package published",
		"version", d.Version,
		"archive", archivePath,
		"sha256", staged.SHA256,
		"size", staged.Size,
		"index", opts.OutputIndex,
	)
	return result, nil
}

// signIndex signs data and checks the signature against the public half of
// the key before anything is committed.
func signIndex(data []byte, armoredKey, passphrase string) ([]byte, error) {
	signature, err := signing.SignDetached(data, armoredKey, []byte(passphrase))
	if err != nil {
		return nil, err
	}
	pub, err := signing.PublicKey(armoredKey)
	if err != nil {
		return nil, err
	}
	if err := signing.Verify(data, signature, string(pub)); err != nil {
		return nil, fmt.Errorf("%w: signing key produced an unverifiable signature: %v", domain.ErrConfig, err)
	}
	return signature, nil
}
