package codec

import (
	"strconv"
	"strings"
	"time"

	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
)

// reasonPhrases is the fixed reason-phrase table; any status code absent
// from it gets "Wot".
var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	206: "Partial Content",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Timeout",
	409: "Conflict",
	418: "No Such Handler",
	499: "Client error",
	500: "Internal Error",
	501: "Not Implemented",
	502: "Backend Error",
	503: "Busy",
}

// ReasonPhrase returns the reason phrase for code, or "Wot" if unknown.
func ReasonPhrase(code int) string {
	if p, ok := reasonPhrases[code]; ok {
		return p
	}
	return "Wot"
}

const (
	headerSendDeadline = 5 * time.Second
	chunkSendDeadline  = time.Second
)

// Reply is the single-owner bearer of an outgoing response: the socket
// (taken over from the Request once parsing completes), accumulated
// response headers, the status code, the egress byte counter, and the
// time the reply started.
type Reply struct {
	Conn       *ioprim.ActiveFD
	Header     map[string]string
	StatusCode int
	BytesOut   int64
	Start      time.Time
}

// NewReply begins a reply on conn.
func NewReply(conn *ioprim.ActiveFD) *Reply {
	return &Reply{Conn: conn, Header: make(map[string]string), Start: time.Now()}
}

// WriteHeaders composes "HTTP/1.1 <code> <reason>\r\nConnection: close\r\n"
// plus either Content-Length or Transfer-Encoding: chunked, plus any
// accumulated response headers, plus the blank line, and sends it under a
// 5 s deadline.
func (r *Reply) WriteHeaders(code int, contentLength int64, chunked bool) error {
	r.StatusCode = code

	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(code))
	b.WriteByte(' ')
	b.WriteString(ReasonPhrase(code))
	b.WriteString("\r\nConnection: close\r\n")
	if chunked {
		b.WriteString("Transfer-Encoding: chunked\r\n")
	} else {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.FormatInt(contentLength, 10))
		b.WriteString("\r\n")
	}
	for k, v := range r.Header {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")

	out := []byte(b.String())
	deadline := time.Now().Add(headerSendDeadline)
	if err := ioprim.WriteFull(r.Conn.FD, out, deadline); err != nil {
		return err
	}
	r.BytesOut += int64(len(out))
	return nil
}

// WriteChunk emits "<hex-length>\r\n" + data + "\r\n" as a single writev.
// A zero-length chunk is a no-op — callers use WriteFinalChunk to end the
// stream.
func (r *Reply) WriteChunk(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	sizeLine := []byte(strconv.FormatInt(int64(len(data)), 16) + "\r\n")
	iov := [][]byte{sizeLine, data, {'\r', '\n'}}

	deadline := time.Now().Add(chunkSendDeadline)
	if err := ioprim.WritevFull(r.Conn.FD, iov, deadline); err != nil {
		return err
	}
	r.BytesOut += int64(len(sizeLine) + len(data) + 2)
	return nil
}

// WriteFinalChunk emits the terminating "0\r\n\r\n".
func (r *Reply) WriteFinalChunk() error {
	final := []byte("0\r\n\r\n")
	deadline := time.Now().Add(chunkSendDeadline)
	if err := ioprim.WriteFull(r.Conn.FD, final, deadline); err != nil {
		return err
	}
	r.BytesOut += int64(len(final))
	return nil
}

// WriteError sends a bodyless error reply.
func (r *Reply) WriteError(code int) error {
	return r.WriteHeaders(code, 0, false)
}
