//go:build debug

// Package debug provides assertion and invariant-checking utilities that
// compile to no-ops unless the binary is built with the "debug" tag.
package debug

import (
	"fmt"
	"sync"
)

func ON() bool { return true }

func Func(f func()) { f() }

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed"}, args...)...))
	}
}

func AssertFunc(f func() bool, args ...any) { Assert(f(), args...) }

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// best-effort: sync.Mutex/RWMutex expose no portable "locked" introspection,
// so these only catch the trivial double-unlock-style misuse via TryLock.
func AssertMutexLocked(m *sync.Mutex) {
	Assert(!m.TryLock())
}

func AssertRWMutexLocked(m *sync.RWMutex) {
	Assert(!m.TryLock())
}

func AssertRWMutexRLocked(m *sync.RWMutex) {
	locked := !m.TryRLock()
	if !locked {
		m.RUnlock()
	}
	Assert(locked)
}
