package probe

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Result of a single probe.
type Result int

const (
	NotFound Result = iota
	Found
)

func (r Result) String() string {
	if r == Found {
		return "found"
	}

	return "not found"
}

// Probe checks one candidate. A failing probe stops the chain.
type Probe[T any] func(ctx context.Context) (T, Result, error)

// ResolutionError is returned when a probe fails for another reason than the candidate being absent.
type ResolutionError struct {
	Index int
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("probe %d: %v", e.Index, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// First runs the probes one after the other and returns the value of the first that finds something.
// Probes after a hit or a failure are never started. When every probe comes up empty the result is the
// zero value and false, without an error.
func First[T any](ctx context.Context, probes []Probe[T]) (T, bool, error) {
	var zero T
	for i, p := range probes {
		if err := ctx.Err(); err != nil {
			return zero, false, errors.WithStack(&ResolutionError{Index: i, Err: err})
		}

		v, res, err := p(ctx)
		if err != nil {
			return zero, false, errors.WithStack(&ResolutionError{Index: i, Err: err})
		}

		if res == Found {
			return v, true, nil
		}
	}

	return zero, false, nil
}

// FS is the part of the file system the file probes need.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
}

// OSFS stats files on the local disk.
type OSFS struct{}

func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// Hit is a candidate that exists as a regular file.
type Hit struct {
	Path string
	Info fs.FileInfo
}

// RegularFile probes path: absent files, paths running through a file, and anything that is not a
// regular file (directories included) are not found.
func RegularFile(fsys FS, path string) Probe[Hit] {
	return func(context.Context) (Hit, Result, error) {
		info, err := fsys.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
			return Hit{}, NotFound, nil
		case err != nil:
			return Hit{}, NotFound, errors.Wrapf(err, "stat %s", path)
		case !info.Mode().IsRegular():
			return Hit{}, NotFound, nil
		}

		return Hit{Path: path, Info: info}, Found, nil
	}
}

// Resolve returns the first candidate that is a regular file.
func Resolve(ctx context.Context, fsys FS, candidates []string) (Hit, bool, error) {
	probes := make([]Probe[Hit], len(candidates))
	for i, c := range candidates {
		probes[i] = RegularFile(fsys, c)
	}

	return First(ctx, probes)
}
