// Package contract implements the branch core of the compilation engine:
// contract kinds declare their branches (state transitions, argument-taking
// continuations, and bare finish conditions), and a compile pass resolves
// those declarations against a context into unlocking clauses and
// transaction templates.
//
// Branch inclusion is decided by compile-time conditions that return a
// Verdict; verdicts merge under a fixed precedence so independent
// conditions compose without ordering surprises. Guards contribute the
// cryptographic unlocking conditions and may be cached per pass or
// re-evaluated fresh on every use. Template production is lazy: branches
// yield templates through iterators so a failing branch stops early
// without discarding work already accepted.
package contract
