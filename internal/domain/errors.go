package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Callers wrap these with package or section context and
// classify with errors.Is.
var (
	ErrConfig            = errors.New("configuration error")
	ErrAmbiguousSource   = fmt.Errorf("%w: both directory and repo specified", ErrConfig)
	ErrNoSource          = fmt.Errorf("%w: one of directory or repo is required", ErrConfig)
	ErrDuplicateName     = fmt.Errorf("%w: duplicate package name", ErrConfig)
	ErrSourceUnavailable = errors.New("package source unavailable")
	ErrMissingVersion    = errors.New("no version found in platform.txt")
	ErrUnknownParent     = errors.New("parent package not found in index")
	ErrStaleUpdate       = errors.New("index already has this version or newer")
	ErrTemplate          = errors.New("invalid index template")
	ErrIOWrite           = errors.New("write failed")
)
