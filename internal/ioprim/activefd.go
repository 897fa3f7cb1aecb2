package ioprim

import (
	"time"

	"golang.org/x/sys/unix"
)

// ActiveFD is a non-blocking socket handle with its peer address attached.
type ActiveFD struct {
	FD   int
	Peer unix.Sockaddr
}

// NewActiveFD wraps an already-accepted, non-blocking socket descriptor.
func NewActiveFD(fd int, peer unix.Sockaddr) *ActiveFD {
	return &ActiveFD{FD: fd, Peer: peer}
}

// Close closes the socket. Safe to call once; the descriptor is detached
// from any scheduler bookkeeping automatically once closed.
func (a *ActiveFD) Close() error {
	return unix.Close(a.FD)
}

// Read performs a single recv into a fresh slice, waiting out EAGAIN until
// deadline. Returns 0, io.EOF-equivalent on orderly peer shutdown.
func (a *ActiveFD) Read(buf []byte, deadline time.Time) (int, error) {
	for {
		n, err := unix.Read(a.FD, buf)
		if err != nil {
			if err == unix.EAGAIN {
				if werr := waitReadable(a.FD, deadline); werr != nil {
					return 0, werr
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		return n, nil
	}
}

// ReadIn reads into a caller-supplied buffer, the same way Read does — the
// distinction from Read exists so callers can reuse or grow a buffer across
// many calls instead of allocating a fresh one each time (see the chunked
// body reader's geometric block growth).
func (a *ActiveFD) ReadIn(buf []byte, deadline time.Time) (int, error) {
	return a.Read(buf, deadline)
}

// Sendfile streams up to max bytes of fileFD, starting at the given file
// offset, to the socket. It retries short sends and waits on either the
// socket becoming writable or the file becoming readable on EAGAIN. If
// sendfile moves 0 bytes (end of file) it stops early and returns the
// count sent so far with a nil error.
func (a *ActiveFD) Sendfile(fileFD int, offset int64, max int64, deadline time.Time) (int64, error) {
	var sent int64
	off := offset
	for sent < max {
		n, err := unix.Sendfile(a.FD, fileFD, &off, int(max-sent))
		if err != nil {
			if err == unix.EAGAIN {
				if werr := waitEither(fileFD, a.FD, deadline); werr != nil {
					return sent, werr
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return sent, err
		}
		if n == 0 {
			break
		}
		sent += int64(n)
	}
	return sent, nil
}

// SetPrio sets SO_PRIORITY on the socket to the given TOS-derived value.
func (a *ActiveFD) SetPrio(tos int) error {
	return unix.SetsockoptInt(a.FD, unix.SOL_SOCKET, unix.SO_PRIORITY, tos)
}
