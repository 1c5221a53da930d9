// Package registry loads the board package registry: the file that names
// each locally maintained package and where its sources live.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/boardindex/bpt/internal/archive"
	"github.com/boardindex/bpt/internal/cleanup"
	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/source"
)

// Definition is one registry section as written by the user.
type Definition struct {
	Name          string `ini:"-" yaml:"-" validate:"required,package_name"`
	Parent        string `ini:"index_parent" yaml:"index_parent" validate:"required,package_name"`
	Template      string `ini:"index_template" yaml:"index_template" validate:"required"`
	ArchivePrefix string `ini:"archive_prefix" yaml:"archive_prefix" validate:"omitempty,package_name"`
	ArchiveFormat string `ini:"archive_format" yaml:"archive_format" validate:"omitempty,oneof=tar.bz2 tar.gz tar.xz tar.zst"`
	Directory     string `ini:"directory" yaml:"directory"`
	Repo          string `ini:"repo" yaml:"repo"`
	RepoDir       string `ini:"repo_dir" yaml:"repo_dir" validate:"omitempty,relpath"`
	RepoRef       string `ini:"repo_ref" yaml:"repo_ref"`
}

// Package is a materialized definition: its descriptor and the source
// backing it.
type Package struct {
	Descriptor domain.Descriptor
	Source     source.Source
}

// Options configures how sources are materialized.
type Options struct {
	// Token authenticates git clones over HTTP.
	Token string
	// TempRoot is where clone directories are created.
	TempRoot string
	Logger   *zap.SugaredLogger
}

// Registry holds validated package definitions in file order.
type Registry struct {
	path   string
	defs   []Definition
	opts   Options
	logger *zap.SugaredLogger
}

// Load reads the registry at path. Files ending in .yaml or .yml are YAML;
// anything else is INI. Every section is checked and all problems are
// reported together.
func Load(path string, opts Options) (*Registry, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read registry %s: %v", domain.ErrConfig, path, err)
	}

	var defs []Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		defs, err = parseYAML(data)
	default:
		defs, err = parseINI(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: registry %s: %v", domain.ErrConfig, path, err)
	}

	if err := validate(defs); err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}

	opts.Logger.Debugw("registry loaded", "path", path, "packages", len(defs))

	return &Registry{
		path:   path,
		defs:   defs,
		opts:   opts,
		logger: opts.Logger,
	}, nil
}

func validate(defs []Definition) error {
	v := domain.NewValidator()

	var errs []error
	for i := range defs {
		if err := validateDefinition(v, &defs[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateDefinition(v *validator.Validate, def *Definition) error {
	if err := v.Struct(def); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: section %q: %v", domain.ErrConfig, def.Name, err)
		}
		var errs []error
		for _, fe := range verrs {
			errs = append(errs, fieldError(def.Name, fe))
		}
		return errors.Join(errs...)
	}

	switch {
	case def.Directory != "" && def.Repo != "":
		return fmt.Errorf("%w: section %q sets both directory and repo", domain.ErrAmbiguousSource, def.Name)
	case def.Directory == "" && def.Repo == "":
		return fmt.Errorf("%w: section %q must set directory or repo", domain.ErrNoSource, def.Name)
	}
	return nil
}

func fieldError(section string, fe validator.FieldError) error {
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: section %q: missing required key %q", domain.ErrConfig, section, fe.Field())
	case "oneof":
		return fmt.Errorf("%w: section %q: %s must be one of %s", domain.ErrConfig, section, fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%w: section %q: invalid %s %q", domain.ErrConfig, section, fe.Field(), fe.Value())
	}
}

// Path returns the file the registry was loaded from.
func (r *Registry) Path() string {
	return r.path
}

// Definitions returns the definitions in file order.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Lookup returns the definition named name, or nil when there is none.
// Several sections resolving to the same name are an error.
func (r *Registry) Lookup(name string) (*Definition, error) {
	var found *Definition
	for i := range r.defs {
		if r.defs[i].Name != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateName, name)
		}
		def := r.defs[i]
		found = &def
	}
	return found, nil
}

// Open materializes every definition in file order. Sources that could be
// opened are returned and registered with guard; failures are joined into
// the error.
func (r *Registry) Open(ctx context.Context, guard *cleanup.Guard) ([]*Package, error) {
	var (
		pkgs []*Package
		errs []error
	)
	for _, def := range r.defs {
		pkg, err := r.OpenDefinition(ctx, def, guard)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, errors.Join(errs...)
}

// OpenOne materializes only the named package.
func (r *Registry) OpenOne(ctx context.Context, name string, guard *cleanup.Guard) (*Package, error) {
	def, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	if def == nil {
		return nil, fmt.Errorf("%w: unknown package %q", domain.ErrConfig, name)
	}
	return r.OpenDefinition(ctx, *def, guard)
}

// OpenDefinition creates the source for def. A clone is registered with
// guard as soon as it exists.
func (r *Registry) OpenDefinition(ctx context.Context, def Definition, guard *cleanup.Guard) (*Package, error) {
	format, err := archive.ParseFormat(def.ArchiveFormat)
	if err != nil {
		return nil, fmt.Errorf("%w: package %q: %v", domain.ErrConfig, def.Name, err)
	}

	var src source.Source
	if def.Directory != "" {
		src, err = source.NewDirectory(filepath.Clean(def.Directory), "")
	} else {
		var c *source.Clone
		c, err = source.NewClone(ctx, source.CloneOptions{
			URL:      def.Repo,
			SubPath:  def.RepoDir,
			Ref:      def.RepoRef,
			Token:    r.opts.Token,
			TempRoot: r.opts.TempRoot,
			Logger:   r.logger,
		})
		if err == nil {
			src = c
			if guard != nil {
				guard.Add("clone "+def.Name, c)
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("package %q: %w", def.Name, err)
	}

	r.logger.Debugw("package opened",
		"package", def.Name,
		"version", src.Version(),
		"origin", src.Origin(),
	)

	return &Package{
		Descriptor: domain.Descriptor{
			Parent:        def.Parent,
			Name:          def.Name,
			Version:       src.Version(),
			Origin:        src.Origin(),
			ArchivePrefix: def.ArchivePrefix,
			ArchiveExt:    string(format),
			Template:      def.Template,
		},
		Source: src,
	}, nil
}
