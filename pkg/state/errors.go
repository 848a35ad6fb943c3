package state

import (
	"errors"
	"fmt"
)

var (
	// ErrReentrantMutation indicates an updater tried to mutate synchronously. Updaters must use
	// Schedule instead.
	ErrReentrantMutation = errors.New("mutation called from inside an updater")

	// ErrClosed indicates the store no longer accepts mutations.
	ErrClosed = errors.New("state store closed")

	// ErrNoVariants indicates a fetch returned no usable variant.
	ErrNoVariants = errors.New("no variants could be loaded")
)

// UpdaterError wraps a failure returned (or panicked) by an updater. The state is left as it was.
type UpdaterError struct {
	Op  string
	Err error
}

func (e *UpdaterError) Error() string {
	return fmt.Sprintf("%s mutation failed: %v", e.Op, e.Err)
}

func (e *UpdaterError) Unwrap() error {
	return e.Err
}

func (e *UpdaterError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// FetchError reports a spec fetch failure for one service URI.
type FetchError struct {
	URI string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch spec for %s: %v", e.URI, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func IsReentrantMutation(err error) bool {
	return errors.Is(err, ErrReentrantMutation)
}
