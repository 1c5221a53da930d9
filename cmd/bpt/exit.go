package main

import (
	"errors"

	"github.com/boardindex/bpt/internal/domain"
)

// Process exit codes
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfig        = 2
	ExitSource        = 3
	ExitStale         = 4
	ExitIO            = 5
	ExitTemplate      = 6
	ExitUnknownParent = 7
)

// ExitCode classifies err into a process exit code. The most specific
// failure wins when err joins several.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrStaleUpdate):
		return ExitStale
	case errors.Is(err, domain.ErrTemplate):
		return ExitTemplate
	case errors.Is(err, domain.ErrUnknownParent):
		return ExitUnknownParent
	case errors.Is(err, domain.ErrSourceUnavailable), errors.Is(err, domain.ErrMissingVersion):
		return ExitSource
	case errors.Is(err, domain.ErrConfig):
		return ExitConfig
	case errors.Is(err, domain.ErrIOWrite):
		return ExitIO
	default:
		return ExitFailure
	}
}
