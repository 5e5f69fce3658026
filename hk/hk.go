// Package hk is flare's housekeeper: a single background goroutine that
// runs registered callbacks on their own interval. No other package in
// this module registers with it; the rpcserver stream reaper runs its
// own ticker.
//
// Grounded on the teacher's hk package (retrieved only as a ginkgo test,
// housekeeper_suite_test.go, since the real source was lost in the
// _examples/ incident recorded in DESIGN.md); the observable contract
// re-created here — Reg/Unreg by name, a UnregInterval sentinel, and the
// "name + NameSuffix" disambiguation pattern used by callers that
// register more than one job under a logical name — matches what that
// test exercised.
package hk

import (
	"container/heap"
	"sync"
	"time"

	"github.com/flarerpc/flare/cmn/cos"
	"github.com/flarerpc/flare/cmn/nlog"
)

// NameSuffix disambiguates multiple jobs registered under the same
// logical name, e.g. name+NameSuffix+"flush", name+NameSuffix+"reap".
const NameSuffix = "-hk"

// UnregInterval, returned by a callback, removes the job instead of
// rescheduling it.
const UnregInterval = time.Duration(-1)

type job struct {
	name     string
	f        func() time.Duration
	due      time.Time
	interval time.Duration
	index    int // heap index
}

type jobHeap []*job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *jobHeap) Push(x any)         { j := x.(*job); j.index = len(*h); *h = append(*h, j) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return j
}

type houseKeeper struct {
	mu      sync.Mutex
	byName  map[string]*job
	heap    jobHeap
	wake    chan struct{}
	stopCh  cos.StopCh
	started bool
}

var hk = &houseKeeper{byName: make(map[string]*job), wake: make(chan struct{}, 1)}

// Reg registers f to run once after d, and then again after whatever
// duration f itself returns (UnregInterval to stop rescheduling).
func Reg(name string, f func() time.Duration, d time.Duration) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	if old, ok := hk.byName[name]; ok {
		heap.Remove(&hk.heap, old.index)
	}
	j := &job{name: name, f: f, due: time.Now().Add(d), interval: d}
	hk.byName[name] = j
	heap.Push(&hk.heap, j)
	hk.ensureStarted()
	hk.kick()
}

// Unreg removes a previously registered job; a no-op if name is unknown.
func Unreg(name string) {
	hk.mu.Lock()
	defer hk.mu.Unlock()
	j, ok := hk.byName[name]
	if !ok {
		return
	}
	delete(hk.byName, name)
	heap.Remove(&hk.heap, j.index)
}

func (h *houseKeeper) ensureStarted() {
	if h.started {
		return
	}
	h.started = true
	h.stopCh.Init()
	go h.run()
}

func (h *houseKeeper) kick() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *houseKeeper) run() {
	nlog.Infoln("hk: starting")
	for {
		h.mu.Lock()
		var timer <-chan time.Time
		if len(h.heap) > 0 {
			timer = time.After(time.Until(h.heap[0].due))
		}
		h.mu.Unlock()

		select {
		case <-h.stopCh.Listen():
			nlog.Infoln("hk: stopping")
			return
		case <-h.wake:
			continue
		case <-waitOrBlock(timer):
			h.fire()
		}
	}
}

// waitOrBlock returns a channel that never fires when timer is nil,
// avoiding a busy spin while the heap is empty.
func waitOrBlock(timer <-chan time.Time) <-chan time.Time {
	if timer == nil {
		return make(chan time.Time)
	}
	return timer
}

func (h *houseKeeper) fire() {
	h.mu.Lock()
	if len(h.heap) == 0 || h.heap[0].due.After(time.Now()) {
		h.mu.Unlock()
		return
	}
	j := heap.Pop(&h.heap).(*job)
	delete(h.byName, j.name)
	h.mu.Unlock()

	next := j.f()
	if next == UnregInterval {
		return
	}
	h.mu.Lock()
	j.due = time.Now().Add(next)
	j.interval = next
	h.byName[j.name] = j
	heap.Push(&h.heap, j)
	h.mu.Unlock()
}

// Stop shuts the housekeeper goroutine down; used by test teardown.
func Stop() {
	hk.mu.Lock()
	started := hk.started
	hk.mu.Unlock()
	if started {
		hk.stopCh.Close()
	}
}
