// Package upload implements the PUT engine: exclusive-create the temp
// file (with a one-shot lazy mkdir if the parent directory is missing),
// refuse if the final name already exists, stream the body in through
// the codec's BodyReader, then truncate and atomically rename into
// place. Any failure at any step rolls the temp file back; no partial
// blob is ever visible under the final name.
package upload

import (
	"golang.org/x/sys/unix"

	"github.com/zynqcloud/gunkan-blob/internal/basedir"
	"github.com/zynqcloud/gunkan-blob/internal/codec"
	"github.com/zynqcloud/gunkan-blob/internal/errmap"
	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
	"github.com/zynqcloud/gunkan-blob/internal/pathmap"
)

// Options configures the behaviour that is only safe with root privilege
// or a particular filesystem, and is otherwise silently skipped.
type Options struct {
	// Fallocate enables speculative preallocation during splice.
	Fallocate bool
	// FadviseUpload requests POSIX_FADV_DONTNEED on the written range
	// after a successful commit.
	FadviseUpload bool
	// FsyncData calls fdatasync on the file after commit.
	FsyncData bool
	// FsyncDir calls fdatasync on the parent directory after commit, used
	// only when FsyncData is false.
	FsyncDir bool
}

// Result carries the outcome a caller needs to finish the HTTP reply.
type Result struct {
	BytesIn int64
	// Status is the HTTP status to reply with: 201 on success, otherwise
	// the errno-mapped failure code.
	Status int
}

// Put runs the full upload algorithm for one request body against rel
// (the path-mapped relative location for the target BlobId). The body
// reader carries its own deadline for socket reads.
func Put(base *basedir.Handle, rel string, body codec.BodyReader, opts Options) Result {
	tempPath := rel + pathmap.TempSuffix

	fd, err := openTemp(base, tempPath)
	if err != nil {
		return Result{Status: errmap.Status(err)}
	}

	if existsErr := unix.Faccessat(base.FD, rel, unix.F_OK, 0); existsErr == nil {
		rollback(base, tempPath)
		return Result{Status: 409}
	}

	appender := ioprim.NewFileAppender(fd, opts.Fallocate)
	bytesIn, werr := body.WriteTo(appender)
	if werr != nil {
		unix.Close(fd)
		rollback(base, tempPath)
		return Result{BytesIn: bytesIn, Status: errmap.Status(werr)}
	}

	if terr := appender.Truncate(); terr != nil {
		unix.Close(fd)
		rollback(base, tempPath)
		return Result{BytesIn: bytesIn, Status: errmap.Status(terr)}
	}

	if rerr := unix.Renameat(base.FD, tempPath, base.FD, rel); rerr != nil {
		unix.Close(fd)
		rollback(base, tempPath)
		return Result{BytesIn: bytesIn, Status: errmap.Status(rerr)}
	}

	postCommit(base, fd, rel, appender.Written, opts)
	unix.Close(fd)

	return Result{BytesIn: bytesIn, Status: 201}
}

// openTemp opens tempPath exclusively, creating the parent directory
// chain and retrying exactly once if it was missing.
func openTemp(base *basedir.Handle, tempPath string) (int, error) {
	const flags = unix.O_WRONLY | unix.O_CREAT | unix.O_EXCL | unix.O_CLOEXEC | unix.O_NONBLOCK | unix.O_NOATIME
	fd, err := unix.Openat(base.FD, tempPath, flags, 0o644)
	if err == nil {
		return fd, nil
	}
	if err != unix.ENOENT {
		return -1, err
	}
	if mkerr := base.MkdirAllRelative(tempPath); mkerr != nil {
		return -1, mkerr
	}
	fd, err = unix.Openat(base.FD, tempPath, flags, 0o644)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// rollback removes the temp file. A missing temp file is tolerated;
// any other failure is not reported to the caller (best-effort).
func rollback(base *basedir.Handle, tempPath string) {
	_ = unix.Unlinkat(base.FD, tempPath, 0)
}

// postCommit applies the best-effort persistence hints; all failures are
// ignored, matching spec.md §4.4 step 5.
func postCommit(base *basedir.Handle, fd int, rel string, size int64, opts Options) {
	if opts.FadviseUpload {
		_ = unix.Fadvise(fd, 0, size, unix.FADV_DONTNEED)
	}
	if opts.FsyncData {
		_ = unix.Fdatasync(fd)
	} else if opts.FsyncDir {
		dir := "."
		for i := len(rel) - 1; i >= 0; i-- {
			if rel[i] == '/' {
				dir = rel[:i]
				break
			}
		}
		if dfd, err := unix.Openat(base.FD, dir, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0); err == nil {
			_ = unix.Fdatasync(dfd)
			unix.Close(dfd)
		}
	}
}
