// Package handler implements the endpoint table spec.md §4.9/§6.2 names:
// GET /info, GET /v1/status, GET /v1/list/<marker>, and
// PUT|GET|HEAD|DELETE /v1/blob/<id>, plus the supplemented /health and
// /healthz/ready liveness/readiness checks (SPEC_FULL.md §3). Grounded on
// the teacher's internal/handler/routes.go for the shared-dependency
// struct and the readiness-check shape, re-expressed over raw sockets
// instead of net/http since every reply here is written by hand through
// internal/codec rather than an http.ResponseWriter.
package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/zynqcloud/gunkan-blob/internal/basedir"
	"github.com/zynqcloud/gunkan-blob/internal/blobid"
	"github.com/zynqcloud/gunkan-blob/internal/codec"
	"github.com/zynqcloud/gunkan-blob/internal/config"
	"github.com/zynqcloud/gunkan-blob/internal/download"
	"github.com/zynqcloud/gunkan-blob/internal/errmap"
	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
	"github.com/zynqcloud/gunkan-blob/internal/lister"
	"github.com/zynqcloud/gunkan-blob/internal/pathmap"
	"github.com/zynqcloud/gunkan-blob/internal/stats"
	"github.com/zynqcloud/gunkan-blob/internal/tracing"
	"github.com/zynqcloud/gunkan-blob/internal/upload"
	"golang.org/x/sys/unix"
)

// infoBanner is GET /info's constant body, spec.md §8 acceptance case 6.
const infoBanner = "gunkan object-storage blob v1"

const (
	blobPrefix = "/v1/blob/"
	listPrefix = "/v1/list/"
	listExact  = "/v1/list"
)

// minReadyBytes is the free-space floor the supplemented /healthz/ready
// check enforces.
const minReadyBytes = 64 << 20 // 64 MiB

// Handler holds the shared, read-only dependencies every route needs:
// the base-directory handle, the id→path mapper, the upload options
// derived from config, and the stats bank every route records into.
type Handler struct {
	Base       *basedir.Handle
	Mapper     pathmap.Mapper
	Lister     lister.Lister
	Cfg        *config.Config
	UploadOpts upload.Options
	Stats      *stats.Bank
}

// New builds a Handler from a parsed Config and an opened base directory.
func New(cfg *config.Config, base *basedir.Handle, bank *stats.Bank) *Handler {
	mapper := pathmap.Mapper{Width: cfg.HashWidth, Depth: cfg.HashDepth}
	return &Handler{
		Base:   base,
		Mapper: mapper,
		Lister: lister.Lister{Base: base, Width: cfg.HashWidth, Depth: cfg.HashDepth},
		Cfg:    cfg,
		UploadOpts: upload.Options{
			Fallocate:     cfg.Fallocate,
			FadviseUpload: cfg.FadviseUpload,
			FsyncData:     cfg.FsyncData,
			FsyncDir:      cfg.FsyncDir,
		},
		Stats: bank,
	}
}

// Route is the executor-handed-off task body (spec.md §4.8: "the handler
// is responsible for finishing exec and active and writing the reply").
// It starts the exec span FollowsFrom wait/ChildOf active, dispatches to
// the matching route, records stats, and closes the connection.
func (h *Handler) Route(req *codec.Request) {
	start := time.Now()
	defer req.Close()

	_, execSpan := tracing.StartFollowsFrom(req.ActiveCtx, "exec", req.WaitSpan)
	req.ExecSpan = execSpan
	defer func() {
		req.ExecDoneAt = time.Now()
		tracing.Finish(execSpan)
		tracing.Finish(req.ActiveSpan)
	}()

	kind, status, bytesOut := h.dispatch(req)

	h.Stats.AddBytesIn(req.BytesIn)
	h.Stats.AddBytesOut(bytesOut)
	h.Stats.RecordRequest(kind, time.Since(start), status)
}

// dispatch maps a request onto one handler by URL grammar (spec.md
// §6.2), returning the stats kind to record, the status written, and the
// total bytes sent on the wire (including headers).
func (h *Handler) dispatch(req *codec.Request) (stats.Kind, int, int64) {
	switch {
	case req.Path == "/info":
		return h.handleInfo(req)
	case req.Path == "/health":
		return h.handleHealth(req)
	case req.Path == "/healthz/ready":
		return h.handleReady(req)
	case req.Path == "/v1/status":
		return h.handleStatus(req)
	case req.Path == listExact || strings.HasPrefix(req.Path, listPrefix):
		return h.handleList(req)
	case strings.HasPrefix(req.Path, blobPrefix):
		return h.handleBlob(req)
	default:
		return h.writeError(req, stats.KindOther, 418)
	}
}

// newReply begins a reply on req's connection, carrying req's active
// span forward as a traceparent header (spec.md §4.2).
func (h *Handler) newReply(req *codec.Request) *codec.Reply {
	reply := codec.NewReply(req.Conn)
	if tp := tracing.Traceparent(req.ActiveSpan); tp != "" {
		reply.Header["traceparent"] = tp
	}
	return reply
}

// writeError sends a bodyless reply of code and returns the stats triple
// a caller can return directly.
func (h *Handler) writeError(req *codec.Request, kind stats.Kind, code int) (stats.Kind, int, int64) {
	reply := h.newReply(req)
	_ = reply.WriteError(code)
	return kind, code, reply.BytesOut
}

func (h *Handler) handleInfo(req *codec.Request) (stats.Kind, int, int64) {
	if req.Method != "GET" {
		return h.writeError(req, stats.KindInfo, 405)
	}
	body := []byte(infoBanner)
	reply := h.newReply(req)
	if err := reply.WriteHeaders(200, int64(len(body)), false); err != nil {
		return stats.KindInfo, 200, reply.BytesOut
	}
	n, _ := writeBody(req, body)
	return stats.KindInfo, 200, reply.BytesOut + n
}

func (h *Handler) handleHealth(req *codec.Request) (stats.Kind, int, int64) {
	if req.Method != "GET" {
		return h.writeError(req, stats.KindOther, 405)
	}
	body := []byte(`{"status":"ok"}`)
	reply := h.newReply(req)
	reply.Header["Content-Type"] = "application/json"
	if err := reply.WriteHeaders(200, int64(len(body)), false); err != nil {
		return stats.KindOther, 200, reply.BytesOut
	}
	n, _ := writeBody(req, body)
	return stats.KindOther, 200, reply.BytesOut + n
}

// handleReady backs the supplemented /healthz/ready probe (SPEC_FULL.md
// §3): 200 while the base directory is reachable and free space is above
// minReadyBytes, 503 otherwise.
func (h *Handler) handleReady(req *codec.Request) (stats.Kind, int, int64) {
	if req.Method != "GET" {
		return h.writeError(req, stats.KindOther, 405)
	}
	var st unix.Statfs_t
	accessible := unix.Fstatfs(h.Base.FD, &st) == nil
	ready, avail := config.DiskReady(h.Cfg.BaseDir, minReadyBytes)

	status := 200
	if !accessible || !ready {
		status = 503
	}
	body := []byte(`{"ready":` + strconv.FormatBool(accessible && ready) +
		`,"avail_bytes":` + strconv.FormatUint(avail, 10) + `}`)

	reply := h.newReply(req)
	reply.Header["Content-Type"] = "application/json"
	if err := reply.WriteHeaders(status, int64(len(body)), false); err != nil {
		return stats.KindOther, status, reply.BytesOut
	}
	n, _ := writeBody(req, body)
	return stats.KindOther, status, reply.BytesOut + n
}

func (h *Handler) handleStatus(req *codec.Request) (stats.Kind, int, int64) {
	if req.Method != "GET" {
		return h.writeError(req, stats.KindStatus, 405)
	}
	body, err := h.Stats.MarshalJSON()
	if err != nil {
		return h.writeError(req, stats.KindStatus, 500)
	}

	reply := h.newReply(req)
	reply.Header["Content-Type"] = "text/json"
	if err := reply.WriteHeaders(200, 0, true); err != nil {
		return stats.KindStatus, 200, reply.BytesOut
	}
	if err := reply.WriteChunk(body); err != nil {
		return stats.KindStatus, 200, reply.BytesOut
	}
	_ = reply.WriteFinalChunk()
	return stats.KindStatus, 200, reply.BytesOut
}

// handleList serves GET /v1/list/<marker>: a chunked text/plain stream
// of ids strictly greater than marker, one per line, CRLF-terminated
// (spec.md §4.6, §8 acceptance case 5).
func (h *Handler) handleList(req *codec.Request) (stats.Kind, int, int64) {
	if req.Method != "GET" {
		return h.writeError(req, stats.KindList, 405)
	}
	marker := ""
	if strings.HasPrefix(req.Path, listPrefix) {
		marker = req.Path[len(listPrefix):]
	}

	ids, err := h.Lister.List(marker, lister.DefaultMax)
	if err != nil {
		return h.writeError(req, stats.KindList, errmap.Status(err))
	}

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id)
		b.WriteString("\r\n")
	}

	reply := h.newReply(req)
	reply.Header["Content-Type"] = "text/plain"
	if err := reply.WriteHeaders(200, 0, true); err != nil {
		return stats.KindList, 200, reply.BytesOut
	}
	if b.Len() > 0 {
		if err := reply.WriteChunk([]byte(b.String())); err != nil {
			return stats.KindList, 200, reply.BytesOut
		}
	}
	_ = reply.WriteFinalChunk()
	return stats.KindList, 200, reply.BytesOut
}

// handleBlob dispatches PUT|GET|HEAD|DELETE /v1/blob/<id> (spec.md §4.4,
// §4.5, and the DELETE line in §4.9).
func (h *Handler) handleBlob(req *codec.Request) (stats.Kind, int, int64) {
	idStr := req.Path[len(blobPrefix):]
	id, err := blobid.Decode(idStr)
	if err != nil {
		kind := methodKind(req.Method)
		return h.writeError(req, kind, 400)
	}
	rel := h.Mapper.Relative(id)

	switch req.Method {
	case "PUT":
		result := upload.Put(h.Base, rel, req.Body, h.UploadOpts)
		req.BytesIn = result.BytesIn
		reply := h.newReply(req)
		_ = reply.WriteHeaders(result.Status, 0, false)
		return stats.KindPut, result.Status, reply.BytesOut
	case "GET", "HEAD":
		result := download.Get(h.Base, rel, req.Method == "GET", req.Conn, tracing.Traceparent(req.ActiveSpan))
		kind := stats.KindGet
		if req.Method == "HEAD" {
			kind = stats.KindHead
		}
		return kind, result.Status, result.BytesOut
	case "DELETE":
		status := 204
		if derr := unix.Unlinkat(h.Base.FD, rel, 0); derr != nil {
			status = errmap.Status(derr)
		}
		reply := h.newReply(req)
		_ = reply.WriteHeaders(status, 0, false)
		return stats.KindDelete, status, reply.BytesOut
	default:
		return h.writeError(req, methodKind(req.Method), 405)
	}
}

func methodKind(method string) stats.Kind {
	switch method {
	case "PUT":
		return stats.KindPut
	case "GET":
		return stats.KindGet
	case "HEAD":
		return stats.KindHead
	case "DELETE":
		return stats.KindDelete
	default:
		return stats.KindOther
	}
}

// writeBody sends a small fixed-body reply's payload as a single write,
// used by the handlers whose bodies are tiny constant or JSON strings
// rather than streamed content.
func writeBody(req *codec.Request, body []byte) (int64, error) {
	const bodyDeadline = 5 * time.Second
	deadline := time.Now().Add(bodyDeadline)
	if err := ioprim.WriteFull(req.Conn.FD, body, deadline); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}
