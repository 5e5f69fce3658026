package cos

import "sync"

// StopCh is a broadcast-once stop channel: Close is idempotent, Listen
// returns the same closed channel to every caller. Grounded on the
// teacher's transport package, which gates its collector and every stream
// on exactly this shape (gc.stopCh, s.stopCh).
type StopCh struct {
	once sync.Once
	ch   chan struct{}
}

func (s *StopCh) Init() { s.ch = make(chan struct{}) }

func (s *StopCh) Listen() <-chan struct{} { return s.ch }

func (s *StopCh) Close() { s.once.Do(func() { close(s.ch) }) }

// Runner is a contract for long-running background services, mirroring
// the teacher's cos.Runner used to drive StreamCollector. No type in
// this module implements it.
type Runner interface {
	Name() string
	Run() error
	Stop(err error)
}
