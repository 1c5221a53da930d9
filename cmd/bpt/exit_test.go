package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/boardindex/bpt/internal/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitOK},
		{name: "config", err: fmt.Errorf("load: %w", domain.ErrConfig), want: ExitConfig},
		{name: "ambiguous source", err: domain.ErrAmbiguousSource, want: ExitConfig},
		{name: "no source", err: domain.ErrNoSource, want: ExitConfig},
		{name: "duplicate", err: domain.ErrDuplicateName, want: ExitConfig},
		{name: "clone failed", err: fmt.Errorf("pkg: %w", domain.ErrSourceUnavailable), want: ExitSource},
		{name: "no version", err: domain.ErrMissingVersion, want: ExitSource},
		{name: "stale", err: domain.ErrStaleUpdate, want: ExitStale},
		{name: "io", err: domain.ErrIOWrite, want: ExitIO},
		{name: "template", err: domain.ErrTemplate, want: ExitTemplate},
		{name: "unknown parent", err: domain.ErrUnknownParent, want: ExitUnknownParent},
		{name: "joined", err: errors.Join(domain.ErrConfig, domain.ErrMissingVersion), want: ExitSource},
		{name: "other", err: errors.New("boom"), want: ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
