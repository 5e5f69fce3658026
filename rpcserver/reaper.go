package rpcserver

import (
	"container/heap"
	"sync"
	"time"

	"github.com/flarerpc/flare/cmn/cos"
)

// reaper is spec.md §4.6's "stream-table reaper [running] on a dedicated
// task pool", adapted from the teacher's transport.collector: the same
// min-heap-of-ticks idle timer, repointed at rpcserver's streamState
// instead of transport's streamBase, and running per-Connection instead
// of once globally (spec.md scopes the reaper to "streams table per
// connection", narrower than the teacher's process-wide stream set).
type reaper struct {
	idle   time.Duration
	mu     sync.Mutex
	items  []*streamState
	ticker *time.Ticker
	stopCh cos.StopCh
	wg     sync.WaitGroup
}

func newReaper(idle time.Duration) *reaper {
	r := &reaper{idle: idle}
	r.stopCh.Init()
	r.ticker = time.NewTicker(time.Second)
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *reaper) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ticker.C:
			r.tick()
		case <-r.stopCh.Listen():
			r.ticker.Stop()
			return
		}
	}
}

func (r *reaper) tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.items {
		s.ticks--
	}
	for len(r.items) > 0 && r.items[0].ticks <= 0 {
		s := heap.Pop(r).(*streamState)
		s.close()
	}
}

func (r *reaper) add(s *streamState) {
	s.ticks = int(r.idle / time.Second)
	r.mu.Lock()
	heap.Push(r, s)
	r.mu.Unlock()
}

func (r *reaper) remove(s *streamState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.index < 0 || s.index >= len(r.items) || r.items[s.index] != s {
		return
	}
	heap.Remove(r, s.index)
}

func (r *reaper) stop() { r.stopCh.Close() }
func (r *reaper) join() { r.wg.Wait() }

// heap.Interface, min-heap by ticks.
func (r *reaper) Len() int            { return len(r.items) }
func (r *reaper) Less(i, j int) bool  { return r.items[i].ticks < r.items[j].ticks }
func (r *reaper) Swap(i, j int) {
	r.items[i], r.items[j] = r.items[j], r.items[i]
	r.items[i].index = i
	r.items[j].index = j
}

func (r *reaper) Push(x any) {
	s := x.(*streamState)
	s.index = len(r.items)
	r.items = append(r.items, s)
}

func (r *reaper) Pop() any {
	old := r.items
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.index = -1
	r.items = old[:n-1]
	return s
}
