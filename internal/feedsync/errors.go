package feedsync

import (
	"errors"
	"fmt"
)

// Kind classifies a failed page load.
type Kind int

const (
	// KindRemote means the chosen remote page call failed.
	KindRemote Kind = iota + 1
	// KindCacheRead means the local cache could not be read.
	KindCacheRead
	// KindCacheWrite means fetched photos could not be cached. The page is dropped.
	KindCacheWrite
)

func (k Kind) String() string {
	switch k {
	case KindRemote:
		return "remote"
	case KindCacheRead:
		return "cache read"
	case KindCacheWrite:
		return "cache write"
	}
	return "unknown"
}

var (
	// ErrRemoteUnavailable matches every KindRemote error.
	ErrRemoteUnavailable = errors.New("remote page unavailable")
	// ErrCacheInconsistent matches every KindCacheWrite error.
	ErrCacheInconsistent = errors.New("cache inconsistent")
)

// Error is returned by Coordinator.GetPage.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrRemoteUnavailable:
		return e.Kind == KindRemote
	case ErrCacheInconsistent:
		return e.Kind == KindCacheWrite
	}
	return false
}

// KindOf returns the kind of err, or 0 when err did not come from GetPage.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
