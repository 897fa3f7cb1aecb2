// Package codec implements the HTTP surface: incremental header parsing on
// top of an off-the-shelf tokenizer, the counted and chunked request body
// readers, and the chunked-aware reply writer. Nothing here touches the
// filesystem or makes QoS decisions — it only turns bytes on a socket into
// a Request and a Request's handler output back into bytes on a socket.
package codec

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/evanphx/wildcat"

	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
)

// parseState tracks where ConsumeHeaders is in the header block, mirroring
// the {First, HeaderName, HeaderValue, Body, Done} phases the wire format
// goes through. The underlying tokenizer parses a whole buffer at once
// rather than firing a callback per token, so the state only ever takes
// the First/HeaderName (still reading) and Done (parsed) values in
// practice — Body and HeaderValue are named for callers reasoning about
// the lifecycle, not driven by a token-level callback here.
type parseState int

const (
	stateFirst parseState = iota
	stateHeaderName
	stateHeaderValue
	stateBody
	stateDone
)

var (
	// ErrMalformedRequest is returned when the tokenizer rejects the
	// accumulated header bytes outright.
	ErrMalformedRequest = errors.New("codec: malformed request")
	// ErrHeadersTooLarge guards against an unbounded header block from a
	// client that never sends the terminating blank line.
	ErrHeadersTooLarge = errors.New("codec: header block exceeds maximum size")
)

// maxHeaderBytes bounds how much a single connection may buffer before
// headers are judged complete or rejected.
const maxHeaderBytes = 16 << 10

var parserPool = sync.Pool{
	New: func() interface{} { return wildcat.NewHTTPParser() },
}

var contentLengthHeader = []byte("Content-Length")
var transferEncodingHeader = []byte("Transfer-Encoding")

// HeaderParser drives a pooled *wildcat.HTTPParser across successive reads
// until the header block is complete.
type HeaderParser struct {
	parser *wildcat.HTTPParser
	state  parseState
	buf    []byte
}

// NewHeaderParser borrows a parser from the pool.
func NewHeaderParser() *HeaderParser {
	return &HeaderParser{parser: parserPool.Get().(*wildcat.HTTPParser), state: stateFirst}
}

// Release returns the underlying parser to the pool. Callers must not use
// the HeaderParser afterward.
func (hp *HeaderParser) Release() {
	hp.state = stateFirst
	hp.buf = nil
	if hp.parser != nil {
		parserPool.Put(hp.parser)
		hp.parser = nil
	}
}

// ConsumeHeaders reads from conn into fresh buffers and feeds the tokenizer
// until it reports the header block complete (pausing there), a parse
// error occurs, the deadline expires, or EOF arrives before completion. On
// success it returns any bytes already read past the header block — these
// belong to the body reader and must be consumed before it touches the
// socket again.
func (hp *HeaderParser) ConsumeHeaders(conn *ioprim.ActiveFD, deadline time.Time) (pending []byte, err error) {
	hp.state = stateHeaderName
	for {
		block := make([]byte, 4096)
		n, rerr := conn.Read(block, deadline)
		if n > 0 {
			hp.buf = append(hp.buf, block[:n]...)
			if len(hp.buf) > maxHeaderBytes {
				return nil, ErrHeadersTooLarge
			}
			offset, perr := hp.parser.Parse(hp.buf)
			if perr != nil {
				return nil, ErrMalformedRequest
			}
			if offset > 0 {
				hp.state = stateDone
				return hp.buf[offset:], nil
			}
		}
		if rerr != nil {
			return nil, rerr
		}
		if n == 0 {
			return nil, io.EOF
		}
	}
}

// Method returns the parsed request method.
func (hp *HeaderParser) Method() string { return hp.parser.Method }

// Path returns the parsed request URL path.
func (hp *HeaderParser) Path() string { return hp.parser.Path }

// Header returns a single header's value, or "" if absent. Repeated
// headers are not distinguished — callers here never need more than one
// occurrence (Content-Length, Transfer-Encoding).
func (hp *HeaderParser) Header(name string) string {
	v := hp.parser.FindHeader([]byte(name))
	if v == nil {
		return ""
	}
	return string(v)
}

// ContentLength reports the parsed Content-Length header, if present and
// well-formed.
func (hp *HeaderParser) ContentLength() (int64, bool) {
	v := hp.parser.FindHeader(contentLengthHeader)
	if v == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(v)), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Chunked reports whether Transfer-Encoding: chunked was set.
func (hp *HeaderParser) Chunked() bool {
	v := hp.parser.FindHeader(transferEncodingHeader)
	if v == nil {
		return false
	}
	return bytes.EqualFold(bytes.TrimSpace(v), []byte("chunked"))
}
