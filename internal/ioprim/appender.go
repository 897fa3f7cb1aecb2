package ioprim

import (
	"errors"
	"io"
	"runtime"
	"time"

	"golang.org/x/sys/unix"
)

// preallocExtent is the size of the speculative fallocate extent requested
// as Splice approaches the current reservation, so the file rarely needs a
// second fallocate call mid-upload.
const preallocExtent int64 = 64 << 20 // 64 MiB

// spliceLoadRounds bounds how many times Splice tops up the intermediate
// pipe before draining it, so one slow reader can't starve sibling tasks
// sharing the same goroutine-scheduled thread indefinitely.
const spliceLoadRounds = 4

// spliceChunk is the per-round splice request size.
const spliceChunk = 1 << 20 // 1 MiB

// ErrShortSplice is returned when the source closes before the requested
// number of bytes has been moved into the file.
var ErrShortSplice = errors.New("ioprim: source closed before requested size was reached")

// FileAppender owns a writable file descriptor and tracks how much of it
// has been logically written versus speculatively preallocated.
type FileAppender struct {
	FD            int
	Written       int64
	Allocated     int64
	ExtendAllowed bool
}

// NewFileAppender wraps an already-open, writable file descriptor.
func NewFileAppender(fd int, extendAllowed bool) *FileAppender {
	return &FileAppender{FD: fd, ExtendAllowed: extendAllowed}
}

// Preallocate grows the file's reservation to at least size bytes via
// fallocate(FALLOC_FL_KEEP_SIZE), without changing the file's reported
// size. It disables itself permanently if the filesystem returns ENOTSUP.
func (fa *FileAppender) Preallocate(size int64) error {
	if !fa.ExtendAllowed || size <= fa.Allocated {
		return nil
	}
	if err := unix.Fallocate(fa.FD, unix.FALLOC_FL_KEEP_SIZE, 0, size); err != nil {
		if err == unix.ENOTSUP {
			fa.ExtendAllowed = false
			return nil
		}
		return err
	}
	fa.Allocated = size
	return nil
}

// Truncate shrinks the file down to Written if preallocation overshot it.
func (fa *FileAppender) Truncate() error {
	if fa.Allocated <= fa.Written {
		return nil
	}
	if err := unix.Ftruncate(fa.FD, fa.Written); err != nil {
		return err
	}
	fa.Allocated = fa.Written
	return nil
}

// Splice moves exactly max bytes from srcFD into the file using an
// intermediate pipe, with no userspace copy. It loads the pipe for up to
// spliceLoadRounds rounds (or until full), then drains it into the file,
// preallocating a fresh extent as the reservation is approached, and
// yields cooperatively between loads and drains so a large upload does not
// starve sibling tasks on the same thread.
func (fa *FileAppender) Splice(srcFD int, max int64, deadline time.Time) error {
	if max == 0 {
		return nil
	}

	pipe, err := NewPipe()
	if err != nil {
		return err
	}
	defer pipe.Close()

	var moved int64
	for moved < max {
		remaining := max - moved

		var loaded int64
		for round := 0; round < spliceLoadRounds && loaded < remaining; round++ {
			want := spliceChunk
			if int64(want) > remaining-loaded {
				want = int(remaining - loaded)
			}
			roundDeadline := deadline
			if round > 0 {
				// Later rounds only take what is ready now: a full pipe or
				// an idle source ends loading and the pipe is drained.
				roundDeadline = time.Now()
			}
			n, err := pipe.SpliceFrom(srcFD, want, roundDeadline)
			if err != nil {
				if round > 0 && err == ErrDeadlineExceeded {
					break
				}
				return err
			}
			if n == 0 {
				// Source closed early.
				if loaded == 0 {
					return ErrShortSplice
				}
				break
			}
			loaded += int64(n)
			runtime.Gosched()
		}
		if loaded == 0 {
			return ErrShortSplice
		}

		if fa.Written+loaded+preallocExtent > fa.Allocated {
			if err := fa.Preallocate(fa.Written + loaded + preallocExtent); err != nil {
				return err
			}
		}

		var drained int64
		for drained < loaded {
			n, err := pipe.SpliceTo(fa.FD, int(loaded-drained), deadline)
			if err != nil {
				return err
			}
			if n == 0 {
				return io.ErrShortWrite
			}
			drained += int64(n)
			runtime.Gosched()
		}

		fa.Written += drained
		moved += drained
	}
	return nil
}
