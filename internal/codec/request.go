package codec

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
)

// Request is the single-owner bearer of one in-flight connection's state:
// the socket, the parsed method/path/headers, the body reader, the
// ingress byte counter, the four lifecycle timestamps, and the tracing
// spans threaded through the acceptor and executor. It is destroyed when
// the reply is fully written.
type Request struct {
	Conn   *ioprim.ActiveFD
	Header *HeaderParser
	Body   BodyReader

	Method string
	Path   string

	BytesIn int64

	ActiveAt    time.Time
	ParseDoneAt time.Time
	WaitDoneAt  time.Time
	ExecDoneAt  time.Time

	ActiveSpan trace.Span
	ParseSpan  trace.Span
	WaitSpan   trace.Span
	ExecSpan   trace.Span

	// ActiveCtx carries the active span so the executor task can start
	// the exec span ChildOf(active) without threading a parallel
	// parameter everywhere; WaitCtx is its wait-scoped child context.
	ActiveCtx context.Context
	WaitCtx   context.Context
}

// Close releases the header parser and closes the socket. A Reply built
// on the same socket never closes it, so this is the connection's only
// close; handler.Route calls it once the reply has been written.
func (req *Request) Close() {
	if req.Header != nil {
		req.Header.Release()
	}
	if req.Conn != nil {
		req.Conn.Close()
	}
}

// ConsumeRequest builds a Request bound to conn: it parses the header
// block under headerDeadline, then wraps whatever body bytes remain
// (already-read "pending" bytes plus the rest of the socket) in the
// right BodyReader for the declared framing. This is the single place
// the classifier's per-connection task and the codec's own tests both
// go through to turn raw bytes into a Request — spec.md §4.7 step 2's
// "create a Request... run consume_headers".
func ConsumeRequest(conn *ioprim.ActiveFD, headerDeadline, bodyDeadline time.Time) (*Request, error) {
	hp := NewHeaderParser()
	pending, err := hp.ConsumeHeaders(conn, headerDeadline)
	if err != nil {
		hp.Release()
		return nil, err
	}

	req := &Request{
		Conn:   conn,
		Header: hp,
		Method: hp.Method(),
		Path:   hp.Path(),
	}

	if hp.Chunked() {
		req.Body = &ChunkedBodyReader{Conn: conn, Pending: pending, Deadline: bodyDeadline}
		return req, nil
	}

	total, _ := hp.ContentLength()
	req.Body = &InlineBodyReader{Conn: conn, Pending: pending, Total: total, Deadline: bodyDeadline}
	return req, nil
}
