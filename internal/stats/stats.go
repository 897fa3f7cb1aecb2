// Package stats holds the process-lifetime counter bank: bytes in/out,
// per-kind request counts and cumulative microseconds, and the response
// code histogram. Every field is an atomic.Int64 so any thread may
// increment it without lock contention; the JSON projection at
// GET /v1/status is a per-field snapshot, not an atomic snapshot of the
// whole bank.
package stats

import (
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Kind identifies the request category a Bank's h_*/t_* counters are
// keyed by, matching the field-name vocabulary of §3 exactly.
type Kind int

const (
	KindInfo Kind = iota
	KindStatus
	KindPut
	KindGet
	KindHead
	KindDelete
	KindList
	KindOther
	kindCount
)

// Code identifies one response-code histogram bucket. Unknown/unmapped
// codes fall into CodeOther5xx (the "c_50X" bucket).
type Code int

const (
	Code200 Code = iota
	Code201
	Code204
	Code206
	Code400
	Code403
	Code404
	Code405
	Code408
	Code409
	Code418
	Code499
	Code502
	Code503
	CodeOther5xx
	codeCount
)

var codeValues = [codeCount]int{
	Code200: 200, Code201: 201, Code204: 204, Code206: 206,
	Code400: 400, Code403: 403, Code404: 404, Code405: 405, Code408: 408,
	Code409: 409, Code418: 418, Code499: 499, Code502: 502, Code503: 503,
}

// CodeFor maps an HTTP status to its histogram bucket; anything not in
// the fixed table lands in CodeOther5xx.
func CodeFor(status int) Code {
	for c, v := range codeValues {
		if Code(c) != CodeOther5xx && v == status {
			return Code(c)
		}
	}
	return CodeOther5xx
}

// Bank is the fixed set of monotonic counters named in spec.md §3.
type Bank struct {
	bytesIn  atomic.Int64
	bytesOut atomic.Int64

	handled   [kindCount]atomic.Int64
	microsecs [kindCount]atomic.Int64

	codes [codeCount]atomic.Int64
}

// New returns a zeroed counter bank.
func New() *Bank {
	return &Bank{}
}

// AddBytesIn adds n to the bytes-in counter.
func (b *Bank) AddBytesIn(n int64) { b.bytesIn.Add(n) }

// AddBytesOut adds n to the bytes-out counter.
func (b *Bank) AddBytesOut(n int64) { b.bytesOut.Add(n) }

// RecordRequest increments the matching per-kind handled count, adds dur
// to that kind's cumulative microseconds, and increments exactly one
// response-code histogram bucket.
func (b *Bank) RecordRequest(kind Kind, dur time.Duration, status int) {
	b.handled[kind].Add(1)
	b.microsecs[kind].Add(dur.Microseconds())
	b.codes[CodeFor(status)].Add(1)
}

// kindNames and codeNames mirror BlobStats' field vocabulary from the original
// implementation: b_in/b_out, t_<kind>/h_<kind> per request kind, and
// c_<code> per histogram bucket.
var kindNames = [kindCount]string{
	KindInfo: "info", KindStatus: "status", KindPut: "put", KindGet: "get",
	KindHead: "head", KindDelete: "delete", KindList: "list", KindOther: "other",
}

var codeNames = [codeCount]string{
	Code200: "200", Code201: "201", Code204: "204", Code206: "206",
	Code400: "400", Code403: "403", Code404: "404", Code405: "405", Code408: "408",
	Code409: "409", Code418: "418", Code499: "499", Code502: "502", Code503: "503",
	CodeOther5xx: "50X",
}

// Snapshot builds the flat map that GET /v1/status serialises. Each field
// is read independently via atomic.Load — the map as a whole is not a
// single atomic snapshot of the bank.
func (b *Bank) Snapshot() map[string]int64 {
	out := make(map[string]int64, 2+2*int(kindCount)+int(codeCount))
	out["b_in"] = b.bytesIn.Load()
	out["b_out"] = b.bytesOut.Load()
	for k := Kind(0); k < kindCount; k++ {
		out["h_"+kindNames[k]] = b.handled[k].Load()
		out["t_"+kindNames[k]] = b.microsecs[k].Load()
	}
	for c := Code(0); c < codeCount; c++ {
		out["c_"+codeNames[c]] = b.codes[c].Load()
	}
	return out
}

// MarshalJSON renders the current snapshot via json-iterator, used
// directly by the /v1/status handler on its hot path.
func (b *Bank) MarshalJSON() ([]byte, error) {
	return jsoniter.ConfigFastest.Marshal(b.Snapshot())
}
