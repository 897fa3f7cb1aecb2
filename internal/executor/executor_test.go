package executor_test

import (
	"sync"
	"testing"
	"time"

	"github.com/zynqcloud/gunkan-blob/internal/executor"
)

func TestSubmitRunsTask(t *testing.T) {
	m := executor.NewManager(nil)
	stop := make(chan struct{})
	m.Start(stop)
	defer func() {
		close(stop)
		m.Wait()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	m.Submit(executor.BestEffortRead, func() {
		wg.Done()
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run within 2s")
	}
}

func TestTokensIncrementPerCompletedTask(t *testing.T) {
	m := executor.NewManager(nil)
	stop := make(chan struct{})
	m.Start(stop)
	defer func() {
		close(stop)
		m.Wait()
	}()

	const n = 5
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		m.Submit(executor.RealTimeWrite, func() { wg.Done() })
	}
	wg.Wait()

	deadline := time.Now().Add(time.Second)
	for {
		if m.TokensSnapshot()["rt-write"] == n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("tokens = %d, want %d", m.TokensSnapshot()["rt-write"], n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestClassForMapsMethods(t *testing.T) {
	cases := []struct {
		method   string
		realTime bool
		want     executor.Class
	}{
		{"GET", false, executor.BestEffortRead},
		{"HEAD", false, executor.BestEffortRead},
		{"PUT", false, executor.BestEffortWrite},
		{"DELETE", true, executor.RealTimeWrite},
		{"GET", true, executor.RealTimeRead},
	}
	for _, c := range cases {
		if got := executor.ClassFor(c.method, c.realTime); got != c.want {
			t.Errorf("ClassFor(%q, %v) = %v, want %v", c.method, c.realTime, got, c.want)
		}
	}
}
