package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/boardindex/bpt/internal/domain"
	"github.com/boardindex/bpt/internal/middleware"
	"github.com/boardindex/bpt/internal/versions"
)

// Status classifies one package in a check report.
type Status string

const (
	StatusCurrent  Status = "current"
	StatusOutdated Status = "outdated"
	StatusAbsent   Status = "absent"
	StatusError    Status = "error"
)

// Entry is the check result for one registry section.
type Entry struct {
	Name          string
	Parent        string
	LocalVersion  string
	LatestVersion string
	Origin        string
	Status        Status
	Err           error
}

// Report lists check results in registry order.
type Report struct {
	Entries []Entry
}

// Failed reports whether any package could not be checked. Outdated
// packages are warnings, not failures.
func (r *Report) Failed() bool {
	for _, e := range r.Entries {
		if e.Status == StatusError {
			return true
		}
	}
	return false
}

// Err joins the errors of failed entries.
func (r *Report) Err() error {
	var errs []error
	for _, e := range r.Entries {
		if e.Err != nil {
			errs = append(errs, e.Err)
		}
	}
	return errors.Join(errs...)
}

// Outdated returns the entries whose local version is ahead of the index.
func (r *Report) Outdated() []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Status == StatusOutdated {
			out = append(out, e)
		}
	}
	return out
}

// Check compares every registry package with the index. A package that
// cannot be opened is reported and the rest are still checked.
func (w *Workflow) Check(ctx context.Context) (*Report, error) {
	ctx, span := middleware.Tracer().Start(ctx, "check-updates")
	defer span.End()

	guard, release := w.guard()
	defer release()

	log := w.logger()
	report := &Report{}

	w.printf("Loading current packages from their origin repository/directory...")
	for _, def := range w.Registry.Definitions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry := Entry{Name: def.Name, Parent: def.Parent}
		pkg, err := w.Registry.OpenDefinition(ctx, def, guard)
		if err != nil {
			log.Errorw("cannot open package", "package", def.Name, "error", err)
			entry.Status = StatusError
			entry.Err = err
		} else {
			entry.LocalVersion = pkg.Descriptor.Version
			entry.Origin = pkg.Descriptor.Origin
		}
		report.Entries = append(report.Entries, entry)
	}

	w.printf("Found the following current packages:")
	for _, e := range report.Entries {
		if e.Status == StatusError {
			continue
		}
		w.printf("- %s", e.Name)
		w.printf("    version = %s", e.LocalVersion)
		w.printf("    origin  = %s", e.Origin)
	}

	w.printf("Comparing current packages with published versions in board index...")
	for i := range report.Entries {
		e := &report.Entries[i]
		w.printf("- %s", e.Name)
		if e.Status == StatusError {
			w.printf("    error: %v", e.Err)
			middleware.ChecksTotal.WithLabelValues(string(e.Status)).Inc()
			continue
		}

		latest, found, err := w.latestPublished(domain.Descriptor{Parent: e.Parent, Name: e.Name})
		switch {
		case err != nil:
			e.Status = StatusError
			e.Err = fmt.Errorf("package %q: %w", e.Name, err)
			log.Errorw("cannot look up package in index", "package", e.Name, "parent", e.Parent, "error", err)
			w.printf("    error: %v", err)
		case !found:
			e.Status = StatusAbsent
			w.printf("    Not found in board index!")
		default:
			e.LatestVersion = latest
			w.printf("    latest index version = %s", latest)
			if versions.Less(latest, e.LocalVersion) {
				e.Status = StatusOutdated
				w.printf("    !!!! BOARD INDEX NOT UP TO DATE !!!!")
				log.Warnw("index not up to date",
					"package", e.Name,
					"local", e.LocalVersion,
					"published", latest,
				)
			} else {
				e.Status = StatusCurrent
			}
		}
		middleware.ChecksTotal.WithLabelValues(string(e.Status)).Inc()
	}

	span.SetAttributes(
		attribute.Int("bpt.packages", len(report.Entries)),
		attribute.Int("bpt.outdated", len(report.Outdated())),
	)
	if report.Failed() {
		span.SetStatus(codes.Error, "some packages could not be checked")
	}
	return report, nil
}
