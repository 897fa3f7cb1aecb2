package ioprim

import (
	"io"
	"time"

	"golang.org/x/sys/unix"
)

// ReadAtLeast reads from fd into buf until at least min bytes have been
// collected, yielding on EAGAIN until fd is readable or deadline expires.
// It retries EINTR and returns io.ErrUnexpectedEOF if the peer closes the
// connection before min bytes arrive.
func ReadAtLeast(fd int, buf []byte, min int, deadline time.Time) (int, error) {
	total := 0
	for total < min {
		n, err := unix.Read(fd, buf[total:])
		if err != nil {
			if err == unix.EAGAIN {
				if werr := waitReadable(fd, deadline); werr != nil {
					return total, werr
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
		total += n
	}
	return total, nil
}

// WriteFull writes the whole of buf to fd, cooperatively waiting out EAGAIN
// until fd is writable or deadline expires.
func WriteFull(fd int, buf []byte, deadline time.Time) error {
	for len(buf) > 0 {
		n, err := unix.Write(fd, buf)
		if err != nil {
			if err == unix.EAGAIN {
				if werr := waitWritable(fd, deadline); werr != nil {
					return werr
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// WritevFull writes the full contents of iov to fd via writev(2), advancing
// past fully-written buffers and re-slicing a partially-written one, until
// every byte has been accepted by the kernel.
func WritevFull(fd int, iov [][]byte, deadline time.Time) error {
	// Drop leading empty slices so a zero-length buffer never stalls writev.
	for len(iov) > 0 && len(iov[0]) == 0 {
		iov = iov[1:]
	}
	for len(iov) > 0 {
		n, err := unix.Writev(fd, iov)
		if err != nil {
			if err == unix.EAGAIN {
				if werr := waitWritable(fd, deadline); werr != nil {
					return werr
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return err
		}
		iov = advance(iov, n)
	}
	return nil
}

// advance drops n bytes from the head of iov, splitting a partially
// consumed buffer in place.
func advance(iov [][]byte, n int) [][]byte {
	for n > 0 && len(iov) > 0 {
		if n < len(iov[0]) {
			iov[0] = iov[0][n:]
			return iov
		}
		n -= len(iov[0])
		iov = iov[1:]
	}
	return iov
}
