// Package executor implements the four prioritised worker pools — the
// Go analogue of the original's four `RequestExecutor` OS threads
// (Best-Effort-Read, Best-Effort-Write, Real-Time-Read, Real-Time-Write),
// each hosting a cooperative scheduler fed by a mutex-guarded handoff
// queue and woken by a channel standing in for the original's eventfd.
// spec.md §4.8, §9.
package executor

import (
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Class is one of the four QoS classes spec.md §4.8 names.
type Class int

const (
	BestEffortRead Class = iota
	BestEffortWrite
	RealTimeRead
	RealTimeWrite
	numClasses
)

func (c Class) String() string {
	switch c {
	case BestEffortRead:
		return "be-read"
	case BestEffortWrite:
		return "be-write"
	case RealTimeRead:
		return "rt-read"
	case RealTimeWrite:
		return "rt-write"
	default:
		return "unknown"
	}
}

// schedPriority gives the SCHED_RR priority spec.md §4.8 specifies for
// each class (root only; real-time-write highest).
func (c Class) schedPriority() int {
	switch c {
	case RealTimeWrite:
		return 6
	case RealTimeRead:
		return 5
	case BestEffortWrite:
		return 4
	case BestEffortRead:
		return 3
	default:
		return 1
	}
}

// Task is one unit of handed-off work: a fully bound closure that knows
// how to finish its own spans and write its own reply (spec.md §4.8 — "the
// handler is responsible for finishing exec and active and writing the
// reply").
type Task func()

// drainBatch bounds how many queued tasks one consume-loop iteration
// pulls at once, matching spec.md §4.8's "drain up to 16 pending
// requests".
const drainBatch = 16

// wakeWait bounds how long a pool's consume loop sleeps on an empty
// queue before re-checking for shutdown, matching the original's 1 s
// eventfd wait timeout.
const wakeWait = time.Second

// Pool is one QoS executor: a mutex-guarded FIFO queue, a one-shot wake
// channel standing in for the wake eventfd, and an atomic token counter
// standing in for the tokens eventfd ("a cross-thread counting signal
// incremented once per completed request, observable by the main
// thread" — GLOSSARY).
type Pool struct {
	class Class

	mu    sync.Mutex
	queue []Task
	wake  chan struct{}

	tokens atomic.Int64
}

// newPool constructs an idle pool for class.
func newPool(class Class) *Pool {
	return &Pool{class: class, wake: make(chan struct{}, 1)}
}

// Submit enqueues task and signals the pool's consume loop. Safe to call
// from any goroutine — this is the only cross-pool interaction spec.md
// §5 allows ("per-executor handoff queue... guarded by a mutex held only
// for enqueue/dequeue; no I/O under the lock").
func (p *Pool) Submit(task Task) {
	p.mu.Lock()
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Tokens returns the number of tasks this pool has completed so far.
func (p *Pool) Tokens() int64 {
	return p.tokens.Load()
}

// drain pops up to drainBatch queued tasks.
func (p *Pool) drain() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	n := len(p.queue)
	if n > drainBatch {
		n = drainBatch
	}
	batch := p.queue[:n]
	p.queue = p.queue[n:]
	return batch
}

// run is the pool's consume loop: lock to one OS thread (mirroring "each
// hosting a single-threaded cooperative scheduler"), try to apply the
// class's SCHED_RR priority (root only, warn and continue otherwise),
// then loop draining batches and spawning one goroutine per task until
// stop fires.
func (p *Pool) run(stop <-chan struct{}, logger *slog.Logger, wg *sync.WaitGroup) {
	defer wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	applyPriority(p.class, logger)

	for {
		batch := p.drain()
		if len(batch) == 0 {
			select {
			case <-stop:
				return
			case <-p.wake:
				continue
			case <-time.After(wakeWait):
				continue
			}
		}
		for _, task := range batch {
			task := task
			go func() {
				task()
				p.tokens.Add(1)
			}()
		}
		select {
		case <-stop:
			return
		default:
		}
	}
}

// applyPriority sets SCHED_RR on the calling (locked) OS thread. Failure
// (non-root, unsupported platform) is logged once and otherwise ignored
// — spec.md §4.8's "root only; warn and continue otherwise".
func applyPriority(class Class, logger *slog.Logger) {
	err := unix.SchedSetscheduler(0, unix.SCHED_RR, &unix.SchedParam{Priority: int32(class.schedPriority())})
	if err != nil && logger != nil {
		logger.Warn("SCHED_RR unavailable, continuing at default priority",
			"class", class.String(), "err", err)
	}
}

// Manager owns the four QoS pools and starts/stops them together.
type Manager struct {
	pools  [numClasses]*Pool
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewManager constructs the four idle pools. Call Start to run them.
func NewManager(logger *slog.Logger) *Manager {
	m := &Manager{logger: logger}
	for c := Class(0); c < numClasses; c++ {
		m.pools[c] = newPool(c)
	}
	return m
}

// Start launches all four consume loops as goroutines, returning
// immediately. stop, once closed, drains in-flight tasks' own deadlines
// but causes each loop to exit at its next opportunity — spec.md §5's
// "in-flight tasks continue until their own deadlines fire; joins on all
// threads occur during shutdown".
func (m *Manager) Start(stop <-chan struct{}) {
	for _, p := range m.pools {
		m.wg.Add(1)
		go p.run(stop, m.logger, &m.wg)
	}
}

// Wait blocks until every pool's consume loop has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Submit hands task off to the pool for class.
func (m *Manager) Submit(class Class, task Task) {
	m.pools[class].Submit(task)
}

// TokensSnapshot returns each class's completed-task counter, keyed by
// its string name — the tokens-eventfd equivalent exposed for
// observability.
func (m *Manager) TokensSnapshot() map[string]int64 {
	out := make(map[string]int64, numClasses)
	for c, p := range m.pools {
		out[Class(c).String()] = p.Tokens()
	}
	return out
}

// ClassFor classifies a method into a read or write QoS class at
// Best-Effort priority (Real-Time is reserved for callers that need to
// override it explicitly — spec.md §4.7 only names the read/write split
// for the classifier itself).
func ClassFor(method string, realTime bool) Class {
	write := isWriteMethod(method)
	switch {
	case write && realTime:
		return RealTimeWrite
	case write:
		return BestEffortWrite
	case realTime:
		return RealTimeRead
	default:
		return BestEffortRead
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case "PUT", "POST", "COPY", "MOVE", "DELETE":
		return true
	default:
		return false
	}
}
