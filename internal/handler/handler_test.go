package handler_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/gunkan-blob/internal/basedir"
	"github.com/zynqcloud/gunkan-blob/internal/codec"
	"github.com/zynqcloud/gunkan-blob/internal/config"
	"github.com/zynqcloud/gunkan-blob/internal/handler"
	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
	"github.com/zynqcloud/gunkan-blob/internal/stats"
	"github.com/zynqcloud/gunkan-blob/internal/tracing"
)

func newHandler(t *testing.T) (*handler.Handler, string) {
	t.Helper()
	dir := t.TempDir()
	base, err := basedir.Open(dir)
	if err != nil {
		t.Fatalf("basedir.Open: %v", err)
	}
	t.Cleanup(func() { base.Close() })

	cfg := &config.Config{HashWidth: 1, HashDepth: 1, BaseDir: dir}
	return handler.New(cfg, base, stats.New()), dir
}

func socketpair(t *testing.T) (*ioprim.ActiveFD, *ioprim.ActiveFD) {
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
	a := ioprim.NewActiveFD(fds[0], nil)
	b := ioprim.NewActiveFD(fds[1], nil)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

// doRequest parses raw off a fresh connection pair through
// codec.ConsumeRequest, threads through the same active/wait span shape
// the classifier builds, runs h.Route, and returns whatever bytes came
// back on the client side.
func doRequest(t *testing.T, h *handler.Handler, raw string) []byte {
	t.Helper()
	client, server := socketpair(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(2 * time.Second)
		req, err := codec.ConsumeRequest(server, deadline, deadline)
		if err != nil {
			t.Errorf("ConsumeRequest: %v", err)
			return
		}
		activeCtx, activeSpan := tracing.StartActive(context.Background(), "active")
		req.ActiveCtx = activeCtx
		req.ActiveSpan = activeSpan
		_, waitSpan := tracing.StartFollowsFrom(activeCtx, "wait", activeSpan)
		req.WaitSpan = waitSpan
		h.Route(req)
	}()

	if _, err := unix.Write(client.FD, []byte(raw)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reply := drainQuiescent(t, client.FD)
	<-done
	return reply
}

func drainQuiescent(t *testing.T, fd int) []byte {
	t.Helper()
	const quietWindow = 200 * time.Millisecond
	const overallDeadline = 5 * time.Second

	var buf []byte
	chunk := make([]byte, 4096)
	start := time.Now()
	for {
		pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(pfd, int(quietWindow/time.Millisecond))
		if err != nil && err != unix.EINTR {
			t.Fatalf("poll: %v", err)
		}
		if n == 0 {
			return buf
		}
		read, err := unix.Read(fd, chunk)
		if err != nil && err != unix.EAGAIN {
			t.Fatalf("read: %v", err)
		}
		if read > 0 {
			buf = append(buf, chunk[:read]...)
		}
		if time.Since(start) > overallDeadline {
			t.Fatalf("drainQuiescent: exceeded overall deadline with %d bytes", len(buf))
		}
	}
}

func statusLine(reply []byte) string {
	idx := strings.IndexByte(string(reply), '\n')
	if idx < 0 {
		return string(reply)
	}
	return strings.TrimRight(string(reply[:idx]), "\r")
}

func TestRouteInfoReturnsConstantBanner(t *testing.T) {
	h, _ := newHandler(t)
	reply := doRequest(t, h, "GET /info HTTP/1.1\r\nContent-Length: 0\r\n\r\n")

	if !strings.Contains(statusLine(reply), "200") {
		t.Fatalf("status line = %q, want 200", statusLine(reply))
	}
	if !strings.Contains(string(reply), "gunkan object-storage blob v1") {
		t.Errorf("reply = %q, missing info banner", reply)
	}
}

func TestRouteUnknownURLReturns418(t *testing.T) {
	h, _ := newHandler(t)
	reply := doRequest(t, h, "GET /nonsense HTTP/1.1\r\nContent-Length: 0\r\n\r\n")

	if !strings.Contains(statusLine(reply), "418") {
		t.Fatalf("status line = %q, want 418", statusLine(reply))
	}
}

func TestRoutePutGetDeleteRoundTrip(t *testing.T) {
	h, _ := newHandler(t)

	putReply := doRequest(t, h, "PUT /v1/blob/aa,00,0 HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello")
	if !strings.Contains(statusLine(putReply), "201") {
		t.Fatalf("PUT status line = %q, want 201", statusLine(putReply))
	}

	getReply := doRequest(t, h, "GET /v1/blob/aa,00,0 HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	if !strings.Contains(statusLine(getReply), "200") {
		t.Fatalf("GET status line = %q, want 200", statusLine(getReply))
	}
	if !strings.Contains(string(getReply), "hello") {
		t.Errorf("GET reply = %q, missing body", getReply)
	}

	delReply := doRequest(t, h, "DELETE /v1/blob/aa,00,0 HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	if !strings.Contains(statusLine(delReply), "204") {
		t.Fatalf("DELETE status line = %q, want 204", statusLine(delReply))
	}

	missingReply := doRequest(t, h, "GET /v1/blob/aa,00,0 HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	if !strings.Contains(statusLine(missingReply), "404") {
		t.Fatalf("post-delete GET status line = %q, want 404", statusLine(missingReply))
	}
}

func TestRoutePutDuplicateReturns409(t *testing.T) {
	h, _ := newHandler(t)

	first := doRequest(t, h, "PUT /v1/blob/ab,00,0 HTTP/1.1\r\nContent-Length: 3\r\n\r\nfoo")
	if !strings.Contains(statusLine(first), "201") {
		t.Fatalf("first PUT status line = %q, want 201", statusLine(first))
	}
	second := doRequest(t, h, "PUT /v1/blob/ab,00,0 HTTP/1.1\r\nContent-Length: 3\r\n\r\nbar")
	if !strings.Contains(statusLine(second), "409") {
		t.Fatalf("second PUT status line = %q, want 409", statusLine(second))
	}
}

func TestRouteListReturnsSortedIDs(t *testing.T) {
	h, _ := newHandler(t)

	for _, id := range []string{"ac,00,0", "aa,00,0", "ab,00,0"} {
		reply := doRequest(t, h, "PUT /v1/blob/"+id+" HTTP/1.1\r\nContent-Length: 1\r\n\r\nx")
		if !strings.Contains(statusLine(reply), "201") {
			t.Fatalf("PUT %s status line = %q, want 201", id, statusLine(reply))
		}
	}

	listReply := doRequest(t, h, "GET /v1/list/ HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	body := string(listReply)
	aaIdx := strings.Index(body, "aa,00,0")
	abIdx := strings.Index(body, "ab,00,0")
	acIdx := strings.Index(body, "ac,00,0")
	if aaIdx < 0 || abIdx < 0 || acIdx < 0 {
		t.Fatalf("list reply = %q, missing one of the three ids", body)
	}
	if !(aaIdx < abIdx && abIdx < acIdx) {
		t.Errorf("list reply = %q, ids not in ascending order", body)
	}

	resumeReply := doRequest(t, h, "GET /v1/list/aa,00,0 HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	resumeBody := string(resumeReply)
	if strings.Contains(resumeBody, "aa,00,0") {
		t.Errorf("resume-from-marker reply = %q, should not repeat the marker", resumeBody)
	}
	if !strings.Contains(resumeBody, "ab,00,0") || !strings.Contains(resumeBody, "ac,00,0") {
		t.Errorf("resume-from-marker reply = %q, missing ids after marker", resumeBody)
	}
}

func TestRouteStatusReturnsJSON(t *testing.T) {
	h, _ := newHandler(t)
	reply := doRequest(t, h, "GET /v1/status HTTP/1.1\r\nContent-Length: 0\r\n\r\n")

	if !strings.Contains(statusLine(reply), "200") {
		t.Fatalf("status line = %q, want 200", statusLine(reply))
	}
	if !strings.Contains(string(reply), `"b_in"`) {
		t.Errorf("reply = %q, missing b_in field", reply)
	}
	if !strings.Contains(string(reply), "Transfer-Encoding: chunked") {
		t.Errorf("reply = %q, missing chunked framing", reply)
	}
}
