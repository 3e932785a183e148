package contract

import (
	"sync/atomic"

	"github.com/22388o/sapio/pkg/clause"
)

// guardSerial numbers guards at construction so a compile pass can
// memoize cached guards by identity rather than by function pointer.
var guardSerial atomic.Uint64

// Guard produces one unlocking condition for a branch. A branch's guards
// are conjoined: every guard's clause must be satisfiable for the branch
// to be spendable.
//
// Guards come in two evaluation modes. A cached guard is evaluated at most
// once per compile pass and its clause reused wherever the same guard
// appears; a fresh guard is re-evaluated at every use site. Use fresh
// guards when the clause depends on per-use context (derivation path,
// remaining funds); cached guards suit pure key or hash conditions that
// may be expensive to derive.
type Guard[S any] struct {
	id     uint64
	cached bool
	fn     func(S, *Context) clause.Clause
}

// CacheGuard returns a guard memoized per compile pass.
func CacheGuard[S any](fn func(S, *Context) clause.Clause) Guard[S] {
	return Guard[S]{id: guardSerial.Add(1), cached: true, fn: fn}
}

// FreshGuard returns a guard re-evaluated at every use.
func FreshGuard[S any](fn func(S, *Context) clause.Clause) Guard[S] {
	return Guard[S]{id: guardSerial.Add(1), fn: fn}
}

// Cached reports whether the guard is memoized per pass.
func (g Guard[S]) Cached() bool { return g.cached }

// valid reports whether the guard was built by a constructor.
func (g Guard[S]) valid() bool { return g.fn != nil }
