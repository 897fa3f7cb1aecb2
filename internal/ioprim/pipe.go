package ioprim

import (
	"time"

	"golang.org/x/sys/unix"
)

// Pipe is a non-blocking kernel pipe used to splice bytes between two file
// descriptors without a userspace copy.
type Pipe struct {
	r, w int
}

// NewPipe creates a non-blocking, close-on-exec pipe pair.
func NewPipe() (*Pipe, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return &Pipe{r: fds[0], w: fds[1]}, nil
}

// Close releases both ends of the pipe.
func (p *Pipe) Close() {
	unix.Close(p.r)
	unix.Close(p.w)
}

// spliceFlags mirrors the original's NONBLOCK|MOVE|GIFT wrapping of the
// kernel primitive.
const spliceFlags = unix.SPLICE_F_NONBLOCK | unix.SPLICE_F_MOVE | unix.SPLICE_F_GIFT

// SpliceFrom moves up to max bytes from srcFD into the pipe's write end.
// Returns (0, nil) at EOF on srcFD.
func (p *Pipe) SpliceFrom(srcFD int, max int, deadline time.Time) (int, error) {
	for {
		n, err := unix.Splice(srcFD, nil, p.w, nil, max, spliceFlags)
		if err != nil {
			if err == unix.EAGAIN {
				if werr := waitReadable(srcFD, deadline); werr != nil {
					return 0, werr
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		return int(n), nil
	}
}

// SpliceTo moves up to max bytes from the pipe's read end into dstFD.
func (p *Pipe) SpliceTo(dstFD int, max int, deadline time.Time) (int, error) {
	for {
		n, err := unix.Splice(p.r, nil, dstFD, nil, max, spliceFlags)
		if err != nil {
			if err == unix.EAGAIN {
				if werr := waitWritable(dstFD, deadline); werr != nil {
					return 0, werr
				}
				continue
			}
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		return int(n), nil
	}
}
