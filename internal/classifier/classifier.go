// Package classifier implements the acceptor loop: batched accept,
// per-connection header parse, QoS classification, and handoff to the
// executor pool. Grounded on `threads.hpp/.cpp: RequestAcceptor` and
// `thread_classifier.cpp: RequestAcceptor::consume/classify`. spec.md §4.7.
package classifier

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"

	"github.com/zynqcloud/gunkan-blob/internal/codec"
	"github.com/zynqcloud/gunkan-blob/internal/executor"
	"github.com/zynqcloud/gunkan-blob/internal/ioprim"
	"github.com/zynqcloud/gunkan-blob/internal/tracing"
)

// acceptBatch bounds how many connections one accept round takes before
// yielding, matching the original's BATCH_ACCEPTOR.
const acceptBatch = 16

// acceptWait bounds how long the acceptor waits for the listen socket to
// become readable again after EAGAIN, matching SLEEP_ACCEPTOR (1 s).
const acceptWait = time.Second

// headerDeadline bounds consume_headers, matching spec.md §4.7's 1 s
// header deadline.
const headerDeadline = time.Second

// bodyDeadlineWindow bounds the body transfer's readiness waits, matching
// spec.md §5's "splice 2-5 s per round" — a zero deadline would mean
// "wait forever" to every primitive downstream (internal/ioprim/wait.go),
// letting a stalled client block its goroutine indefinitely.
const bodyDeadlineWindow = 5 * time.Second

// Handler is invoked, already classified onto the right executor, with a
// Request whose active/parse/wait spans are populated. It owns finishing
// the exec and active spans and writing the reply (spec.md §4.8).
type Handler func(req *codec.Request)

// TOS values spec.md §4.8 assigns: best-effort gets LowCost, real-time
// gets Throughput, matching original_source/blob/server/threads.cpp:156,
// :169 (executor_rt_* = Throughput) and :189,:202 (executor_be_* =
// LowCost — both read AND write). tosThroughput is unreachable from this
// classifier: spec.md §4.7/§9 only ever classify into the best-effort
// read/write executors here, so every connection this acceptor hands off
// gets tosLowCost; promotion to real-time is a future policy hook, not
// exercised by the classifier.
const (
	tosLowCost    = 0x02
	tosThroughput = 0x08
)

// Acceptor runs the single acceptor loop described by spec.md §4.7: one
// dedicated goroutine accepting batches of connections and spawning one
// task per connection to parse headers and classify.
type Acceptor struct {
	ListenFD  int
	Executors *executor.Manager
	Handler   Handler
	Logger    *slog.Logger
}

// Run drives the accept loop until stop is closed. It never returns
// before then except on a fatal accept error.
func (a *Acceptor) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		fds, eagain, fatal := a.acceptRound()
		for _, fd := range fds {
			go a.classify(fd)
		}
		if fatal {
			if a.Logger != nil {
				a.Logger.Error("acceptor: fatal accept error, stopping")
			}
			return
		}
		if eagain {
			_ = ioprim.WaitReadable(a.ListenFD, time.Now().Add(acceptWait))
		}
	}
}

// acceptRound accepts up to acceptBatch connections in one pass, matching
// "accept a batch of connections to avoid switching to another thread or
// coroutine" from the original.
func (a *Acceptor) acceptRound() (fds []int, eagain bool, fatal bool) {
	for i := 0; i < acceptBatch; i++ {
		fd, _, err := unix.Accept4(a.ListenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if err == unix.EAGAIN {
				return fds, true, false
			}
			if err == unix.EINTR {
				continue
			}
			if a.Logger != nil {
				a.Logger.Warn("accept4 failed", "err", err)
			}
			return fds, false, true
		}
		fds = append(fds, fd)
	}
	return fds, false, false
}

// classify is the per-connection task spec.md §4.7 steps 2-4 describe: it
// starts the active/parse spans, parses headers, detaches from the
// acceptor (a no-op under Go's scheduler — recorded for symmetry with the
// original, which explicitly un-registers the fd from its own epoll),
// starts the wait span, classifies read/write, sets the socket's TOS, and
// hands off to the matching executor.
func (a *Acceptor) classify(fd int) {
	conn := ioprim.NewActiveFD(fd, nil)

	activeCtx, activeSpan := tracing.StartActive(context.Background(), "active")
	_, parseSpan := tracing.StartChild(activeCtx, "parse")

	deadline := time.Now().Add(headerDeadline)
	bodyDeadline := time.Now().Add(bodyDeadlineWindow)
	req, err := codec.ConsumeRequest(conn, deadline, bodyDeadline)
	tracing.Finish(parseSpan)

	if err != nil {
		tracing.Finish(activeSpan)
		conn.Close()
		return
	}
	req.ActiveSpan = activeSpan
	req.ParseSpan = parseSpan
	req.ActiveAt = time.Now()
	req.ParseDoneAt = time.Now()
	req.ActiveCtx = activeCtx

	waitCtx, waitSpan := tracing.StartFollowsFrom(activeCtx, "wait", parseSpan)
	req.WaitSpan = waitSpan
	req.WaitCtx = waitCtx

	class := executor.ClassFor(req.Method, false)
	// Both best-effort classes get LowCost; Throughput is only ever used
	// by the real-time classes this classifier never produces.
	_ = conn.SetPrio(tosLowCost)

	a.Executors.Submit(class, func() {
		req.WaitDoneAt = time.Now()
		a.Handler(req)
	})
}
