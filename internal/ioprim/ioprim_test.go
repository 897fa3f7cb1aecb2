package ioprim_test

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
)

// socketpair returns a connected pair of non-blocking stream sockets,
// standing in for a real accepted connection in these unit tests.
func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestWriteFullAndReadAtLeast(t *testing.T) {
	a, b := socketpair(t)
	payload := []byte("hello, blob storage")

	deadline := time.Now().Add(time.Second)
	if err := ioprim.WriteFull(a, payload, deadline); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}

	buf := make([]byte, len(payload))
	n, err := ioprim.ReadAtLeast(b, buf, len(payload), deadline)
	if err != nil {
		t.Fatalf("ReadAtLeast: %v", err)
	}
	if n != len(payload) || string(buf) != string(payload) {
		t.Errorf("got %q (%d bytes), want %q", buf[:n], n, payload)
	}
}

func TestReadAtLeastDeadlineExceeded(t *testing.T) {
	_, b := socketpair(t)
	buf := make([]byte, 16)
	_, err := ioprim.ReadAtLeast(b, buf, 16, time.Now().Add(20*time.Millisecond))
	if err != ioprim.ErrDeadlineExceeded {
		t.Errorf("got %v, want ErrDeadlineExceeded", err)
	}
}

func TestWritevFull(t *testing.T) {
	a, b := socketpair(t)
	deadline := time.Now().Add(time.Second)

	iov := [][]byte{[]byte("5\r\n"), []byte("hello"), []byte("\r\n")}
	if err := ioprim.WritevFull(a, iov, deadline); err != nil {
		t.Fatalf("WritevFull: %v", err)
	}

	buf := make([]byte, 10)
	n, err := ioprim.ReadAtLeast(b, buf, 10, deadline)
	if err != nil {
		t.Fatalf("ReadAtLeast: %v", err)
	}
	if string(buf[:n]) != "5\r\nhello\r\n" {
		t.Errorf("got %q", buf[:n])
	}
}

func TestFileAppenderSpliceFromSocket(t *testing.T) {
	a, b := socketpair(t)
	deadline := time.Now().Add(2 * time.Second)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	go func() {
		_ = ioprim.WriteFull(a, payload, deadline)
		unix.Close(a)
	}()

	tmp := t.TempDir() + "/blob"
	fd, err := unix.Open(tmp, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer unix.Close(fd)

	fa := ioprim.NewFileAppender(fd, false)
	if err := fa.Splice(b, int64(len(payload)), deadline); err != nil {
		t.Fatalf("Splice: %v", err)
	}
	if fa.Written != int64(len(payload)) {
		t.Errorf("Written = %d, want %d", fa.Written, len(payload))
	}
}
