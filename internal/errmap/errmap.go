// Package errmap implements the errno → HTTP status mapping used
// uniformly by the blob handlers (spec.md §7): EINVAL→400,
// ENOENT/ENOTDIR→404, EISDIR→502, EBUSY→503, EPERM/EACCES/EROFS→403,
// EEXIST→409, otherwise→500.
package errmap

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Status maps err to the HTTP status code a handler should reply with.
// A nil error is mapped to 200, which callers are not expected to use
// directly — Status exists only for the failure path.
func Status(err error) int {
	if err == nil {
		return 200
	}
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return 500
	}
	switch errno {
	case unix.EINVAL:
		return 400
	case unix.ENOENT, unix.ENOTDIR:
		return 404
	case unix.EISDIR:
		return 502
	case unix.EBUSY:
		return 503
	case unix.EPERM, unix.EACCES, unix.EROFS:
		return 403
	case unix.EEXIST:
		return 409
	default:
		return 500
	}
}
