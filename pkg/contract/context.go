package contract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/22388o/sapio/pkg/canonical"
	"github.com/22388o/sapio/pkg/template"
)

// Context carries the environment of one compile pass: the target network,
// the funds available to the contract, the derivation path that names this
// position in the contract tree, and the wall-clock instant the pass is
// evaluated at. Contexts are immutable; deriving returns a copy.
type Context struct {
	network string
	funds   template.Sats
	path    []string
	now     time.Time
	log     *slog.Logger
	stdctx  context.Context
}

// NewContext returns a root compile context for the given network holding
// the given funds.
func NewContext(network string, funds template.Sats) *Context {
	return &Context{
		network: network,
		funds:   funds,
		now:     time.Now().UTC(),
		log:     slog.Default(),
		stdctx:  context.Background(),
	}
}

// Network returns the target network name, e.g. "regtest".
func (c *Context) Network() string { return c.network }

// Funds returns the funds available at this position.
func (c *Context) Funds() template.Sats { return c.funds }

// Now returns the instant the pass is evaluated at.
func (c *Context) Now() time.Time { return c.now }

// Path returns the derivation path as a slash-joined string; the root
// context's path is empty.
func (c *Context) Path() string { return strings.Join(c.path, "/") }

// Logger returns the pass logger.
func (c *Context) Logger() *slog.Logger { return c.log }

// Context returns the cancellation context for guards and conditions that
// perform I/O.
func (c *Context) Context() context.Context { return c.stdctx }

func (c *Context) clone() *Context {
	cp := *c
	cp.path = append([]string(nil), c.path...)
	return &cp
}

// Derive returns a child context one path segment deeper. Segments are
// NFC-normalized so equal-looking paths compare equal.
func (c *Context) Derive(segment string) *Context {
	cp := c.clone()
	cp.path = append(cp.path, canonical.NormalizeLabel(segment))
	return cp
}

// WithAmount returns a copy holding the given funds, which must not exceed
// the current funds: a sub-contract cannot be promised more than its
// parent holds.
func (c *Context) WithAmount(funds template.Sats) (*Context, error) {
	if funds > c.funds {
		return nil, &Error{
			Code: CodeFunds,
			Err:  fmt.Errorf("requested %d sats exceeds available %d sats at %q", funds, c.funds, c.Path()),
		}
	}
	cp := c.clone()
	cp.funds = funds
	return cp, nil
}

// WithNow returns a copy evaluated at the given instant.
func (c *Context) WithNow(now time.Time) *Context {
	cp := c.clone()
	cp.now = now.UTC()
	return cp
}

// WithLogger returns a copy logging through log.
func (c *Context) WithLogger(log *slog.Logger) *Context {
	cp := c.clone()
	cp.log = log
	return cp
}

// WithContext returns a copy bound to the given cancellation context.
func (c *Context) WithContext(ctx context.Context) *Context {
	cp := c.clone()
	cp.stdctx = ctx
	return cp
}

// Template starts a template builder seeded with this context's funds, so
// a branch cannot promise outputs beyond what the contract holds.
func (c *Context) Template() *template.Builder {
	return template.NewBuilder(c.funds)
}
