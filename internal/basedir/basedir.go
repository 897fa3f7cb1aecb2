// Package basedir wraps the single base-directory file descriptor that is
// opened once at startup and held for the process lifetime. Every blob
// path operation is relative to it via the *at syscalls, which protects
// against the directory being renamed or replaced out from under a
// long-running server (spec.md §3 Lifecycles / §5 Shared resources).
package basedir

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Handle is the immutable, process-lifetime directory descriptor.
type Handle struct {
	FD int
}

// Open opens path as a directory descriptor usable with the *at syscalls.
func Open(path string) (*Handle, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("basedir: open %q: %w", path, err)
	}
	return &Handle{FD: fd}, nil
}

// Close releases the directory descriptor. Only called at shutdown.
func (h *Handle) Close() error {
	return unix.Close(h.FD)
}

// OpenDir opens rel (a slash-separated path relative to h, or "." for h
// itself) as a directory and wraps it in an *os.File so the standard
// library's ReadDir can be used for the lister's tree walk.
func (h *Handle) OpenDir(rel string) (*os.File, error) {
	fd, err := unix.Openat(h.FD, rel, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), rel), nil
}

// MkdirAllRelative creates every path component of rel (a slash-separated
// relative path whose final component is a file name, not a directory to
// create) under h, mode 0755. It tolerates components that already exist.
func (h *Handle) MkdirAllRelative(rel string) error {
	dir, _ := splitDir(rel)
	if dir == "" {
		return nil
	}
	var built string
	for _, part := range splitPath(dir) {
		if built == "" {
			built = part
		} else {
			built = built + "/" + part
		}
		if err := unix.Mkdirat(h.FD, built, 0o755); err != nil {
			if err != unix.EEXIST {
				return err
			}
		}
	}
	return nil
}

func splitPath(p string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(p); i++ {
		if i == len(p) || p[i] == '/' {
			if i > start {
				parts = append(parts, p[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

func splitDir(rel string) (dir, file string) {
	idx := -1
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", rel
	}
	return rel[:idx], rel[idx+1:]
}
