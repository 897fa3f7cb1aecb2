// Package ioprim provides bounded, deadline-aware I/O primitives that
// cooperate with the Go scheduler instead of blocking a whole OS thread:
// read-at-least, full write/writev, a splice-backed file appender, a pipe
// wrapper, and a non-blocking socket handle with sendfile support.
//
// Every primitive here loops on EAGAIN, retries EINTR, and aborts once a
// caller-supplied deadline passes — the same discipline spec'd for the
// original acceptor/executor model, expressed with raw non-blocking file
// descriptors and golang.org/x/sys/unix rather than net.Conn, since the
// splice/sendfile/fallocate paths need the underlying fd directly.
package ioprim

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ErrDeadlineExceeded is returned by any primitive here whose wait crossed
// its deadline before the descriptor became ready.
var ErrDeadlineExceeded = errors.New("ioprim: deadline exceeded")

// ErrFDError is returned when poll reports POLLERR/POLLHUP/POLLNVAL on a
// descriptor we were waiting to become ready.
var ErrFDError = errors.New("ioprim: descriptor error")

// waitReady blocks until fd is ready for the given poll event mask or the
// deadline passes (a zero deadline means "wait forever"). It yields the
// calling goroutine to the Go scheduler for the duration of the wait —
// the cooperative suspension point every blocking primitive in this
// package is built from.
func waitReady(fd int, events int16, deadline time.Time) error {
	for {
		timeoutMS := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrDeadlineExceeded
			}
			timeoutMS = int(remaining / time.Millisecond)
			if timeoutMS == 0 {
				timeoutMS = 1
			}
		}

		pfd := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(pfd, timeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return ErrDeadlineExceeded
		}
		if pfd[0].Revents&events != 0 {
			return nil
		}
		if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return ErrFDError
		}
		// Spurious wakeup — loop and recompute the remaining timeout.
	}
}

// waitReadable waits for fd to become readable.
func waitReadable(fd int, deadline time.Time) error {
	return waitReady(fd, unix.POLLIN, deadline)
}

// WaitReadable waits for fd to become readable, or until deadline
// passes. Exported for the acceptor's listen-socket EAGAIN wait (spec.md
// §4.7's "wait for readability on the listen fd with a 1 s timeout").
func WaitReadable(fd int, deadline time.Time) error {
	return waitReadable(fd, deadline)
}

// waitWritable waits for fd to become writable.
func waitWritable(fd int, deadline time.Time) error {
	return waitReady(fd, unix.POLLOUT, deadline)
}

// WaitEither waits for fd1 to become readable OR fd2 to become writable,
// whichever is ready first, or until deadline passes. Exported so callers
// that need a fresh deadline window per retry (the download engine's
// sendfile loop) aren't forced through ActiveFD.Sendfile's single-deadline
// retry loop.
func WaitEither(fd1, fd2 int, deadline time.Time) error {
	return waitEither(fd1, fd2, deadline)
}

// waitEither waits for fd1 to become readable OR fd2 to become writable,
// whichever is ready first. Used by the download engine's sendfile loop,
// which must wake on either the source file or the destination socket.
func waitEither(fd1 int, fd2 int, deadline time.Time) error {
	for {
		timeoutMS := -1
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrDeadlineExceeded
			}
			timeoutMS = int(remaining / time.Millisecond)
			if timeoutMS == 0 {
				timeoutMS = 1
			}
		}
		pfd := []unix.PollFd{
			{Fd: int32(fd1), Events: unix.POLLIN},
			{Fd: int32(fd2), Events: unix.POLLOUT},
		}
		n, err := unix.Poll(pfd, timeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		if n == 0 {
			return ErrDeadlineExceeded
		}
		return nil
	}
}
