// Package download implements the GET/HEAD engine: open, stat, write
// headers, then stream the file to the socket via a sendfile loop that
// waits on either direction's readiness. spec.md §4.5.
package download

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/gunkan-blob/internal/basedir"
	"github.com/zynqcloud/gunkan-blob/internal/codec"
	"github.com/zynqcloud/gunkan-blob/internal/errmap"
	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
)

// sendfileWait bounds each EAGAIN wait inside the sendfile loop; on
// timeout the connection is abandoned rather than retried further.
const sendfileWait = 10 * time.Millisecond

// Result carries the status and byte count a caller needs to account
// for in stats and logging. Abandoned reports a transport failure that
// leaves no further reply possible — the caller should simply drop the
// connection, not attempt to write an error reply.
type Result struct {
	Status    int
	BytesOut  int64
	Abandoned bool
}

// Get serves GET (body=true) or HEAD (body=false) for rel against conn.
// traceparent, if non-empty, is sent back as the reply's traceparent
// header (spec.md §4.2).
func Get(base *basedir.Handle, rel string, body bool, conn *ioprim.ActiveFD, traceparent string) Result {
	fd, err := unix.Openat(base.FD, rel, unix.O_RDONLY|unix.O_CLOEXEC|unix.O_NOATIME|unix.O_NONBLOCK, 0)
	if err != nil {
		return Result{Status: errmap.Status(err)}
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return Result{Status: errmap.Status(err)}
	}
	size := st.Size

	status := 204
	if size > 0 {
		status = 200
	}

	reply := codec.NewReply(conn)
	if traceparent != "" {
		reply.Header["traceparent"] = traceparent
	}
	if err := reply.WriteHeaders(status, size, false); err != nil {
		return Result{Status: status, Abandoned: true}
	}
	bytesOut := reply.BytesOut

	if !body || size == 0 {
		return Result{Status: status, BytesOut: bytesOut}
	}

	sent, abandoned := sendAll(conn, fd, size)
	return Result{Status: status, BytesOut: bytesOut + sent, Abandoned: abandoned}
}

// sendAll loops sendfile until size bytes have moved or the connection
// must be abandoned. Short sends are subtracted and the loop yields;
// EINTR retries; EAGAIN waits up to sendfileWait on either the socket
// becoming writable or the file becoming readable, abandoning on
// timeout. Each EAGAIN gets its own freshly computed sendfileWait
// window — this calls unix.Sendfile directly rather than going through
// ActiveFD.Sendfile, whose internal retry loop reuses one deadline
// across the whole requested range rather than per wait.
func sendAll(conn *ioprim.ActiveFD, fileFD int, size int64) (int64, bool) {
	var sent int64
	off := int64(0)
	for sent < size {
		n, err := unix.Sendfile(conn.FD, fileFD, &off, int(size-sent))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if err == unix.EAGAIN {
				if werr := ioprim.WaitEither(fileFD, conn.FD, time.Now().Add(sendfileWait)); werr != nil {
					return sent, true
				}
				continue
			}
			return sent, true
		}
		if n == 0 {
			return sent, sent < size
		}
		sent += int64(n)
	}
	return sent, false
}
