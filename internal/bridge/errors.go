package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrOutOfDate      = errors.New("out of date")
	ErrInvalidName    = errors.New("invalid name")
	ErrInvalidInput   = errors.New("invalid input")
	ErrNotImplemented = errors.New("not implemented")
)

// VersionConflictError reports an optimistic-lock failure: the caller's last
// known version no longer matches the project's current history version.
type VersionConflictError struct {
	CallerVersion  int
	CurrentVersion int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version out of date: caller has %d, current is %d", e.CallerVersion, e.CurrentVersion)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrOutOfDate
}

// PathValidationError carries the offending path so pull handlers can report it.
type PathValidationError struct {
	Path  string
	State string
}

func (e *PathValidationError) Error() string {
	return fmt.Sprintf("invalid file path: %s", e.Path)
}

func (e *PathValidationError) Is(target error) bool {
	return target == ErrInvalidName
}
