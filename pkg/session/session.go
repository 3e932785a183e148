package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/22388o/sapio/pkg/config"
	"github.com/22388o/sapio/pkg/contract"
	"github.com/22388o/sapio/pkg/observability"
	"github.com/22388o/sapio/pkg/receipt"
	"github.com/22388o/sapio/pkg/store"
	"github.com/22388o/sapio/pkg/template"
)

var (
	// ErrUnknownKind is returned for a contract kind nobody registered.
	ErrUnknownKind = errors.New("session: unknown contract kind")
	// ErrSessionNotFound is returned for a missing session ID.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrInvalidInstance is returned when an instance document fails the
	// kind's schema.
	ErrInvalidInstance = errors.New("session: instance rejected by schema")
)

// Registry holds the contract kinds a server can compile.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]contract.Compiler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]contract.Compiler)}
}

// Register adds a kind. Registering a duplicate name is an error.
func (r *Registry) Register(c contract.Compiler) error {
	if c == nil || c.Kind() == "" {
		return errors.New("session: cannot register unnamed kind")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.kinds[c.Kind()]; dup {
		return fmt.Errorf("session: kind %q already registered", c.Kind())
	}
	r.kinds[c.Kind()] = c
	return nil
}

// Get looks up a kind by name.
func (r *Registry) Get(kind string) (contract.Compiler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.kinds[kind]
	return c, ok
}

// List returns the registered kind names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Session pins one contract instance to a kind, network and funding
// amount. Compiles against the session reuse these bindings.
type Session struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Network   string          `json:"network"`
	Funds     template.Sats   `json:"funds"`
	Instance  json.RawMessage `json:"instance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Result is one finished compilation: the bound branches plus the
// persistence trail (archive pointer, receipt, record row).
type Result struct {
	RecordID   string             `json:"record_id"`
	SessionID  string             `json:"session_id"`
	BundleHash string             `json:"bundle_hash"`
	Compiled   *contract.Compiled `json:"compiled"`
	Receipt    *receipt.Receipt   `json:"receipt"`
}

// KindSummary lists a kind and its declared branches.
type KindSummary struct {
	Kind     string                `json:"kind"`
	Branches []contract.BranchInfo `json:"branches"`
}

// KindDetail adds the instance schema to a summary.
type KindDetail struct {
	Kind           string                `json:"kind"`
	Branches       []contract.BranchInfo `json:"branches"`
	InstanceSchema json.RawMessage       `json:"instance_schema,omitempty"`
}

// ManagerConfig wires a Manager's dependencies. Registry, Store,
// Archive and Signer are required; Profiles and Obs are optional.
type ManagerConfig struct {
	Registry *Registry
	Store    store.CompilationStore
	Archive  store.Archive
	Signer   receipt.Signer
	Profiles map[string]*config.NetworkProfile
	Obs      *observability.Provider
}

// Manager owns sessions and runs compiles end to end: context from the
// network profile, compile pass, bundle archival, receipt issuance,
// record persistence.
type Manager struct {
	registry *Registry
	store    store.CompilationStore
	archive  store.Archive
	signer   receipt.Signer
	profiles map[string]*config.NetworkProfile
	obs      *observability.Provider
	log      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager validates the wiring and creates a manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("session: manager requires a registry")
	case cfg.Store == nil:
		return nil, errors.New("session: manager requires a compilation store")
	case cfg.Archive == nil:
		return nil, errors.New("session: manager requires an archive")
	case cfg.Signer == nil:
		return nil, errors.New("session: manager requires a signer")
	}

	obs := cfg.Obs
	if obs == nil {
		// New never fails for a disabled provider.
		obs, _ = observability.New(context.Background(), &observability.Config{Enabled: false})
	}

	return &Manager{
		registry: cfg.Registry,
		store:    cfg.Store,
		archive:  cfg.Archive,
		signer:   cfg.Signer,
		profiles: cfg.Profiles,
		obs:      obs,
		log:      slog.With("component", "session"),
		sessions: make(map[string]*Session),
	}, nil
}

// Kinds summarizes every registered kind.
func (m *Manager) Kinds() []KindSummary {
	names := m.registry.List()
	out := make([]KindSummary, 0, len(names))
	for _, name := range names {
		c, ok := m.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, KindSummary{Kind: name, Branches: c.Branches()})
	}
	return out
}

// Kind describes one kind, including its instance schema.
func (m *Manager) Kind(name string) (*KindDetail, bool) {
	c, ok := m.registry.Get(name)
	if !ok {
		return nil, false
	}
	detail := &KindDetail{Kind: name, Branches: c.Branches()}
	if s := c.InstanceSchema(); s != nil {
		detail.InstanceSchema = s.Raw()
	}
	return detail, true
}

// PublicKey returns the engine's receipt verification key.
func (m *Manager) PublicKey() string {
	return m.signer.PublicKey()
}

// CreateSession validates the instance against the kind's schema and
// pins it. An empty network defaults to bitcoin; an empty instance
// defaults to an empty object.
func (m *Manager) CreateSession(kind, network string, funds template.Sats, instance json.RawMessage) (*Session, error) {
	c, ok := m.registry.Get(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if network == "" {
		network = "bitcoin"
	}
	if len(instance) == 0 {
		instance = json.RawMessage(`{}`)
	}
	if s := c.InstanceSchema(); s != nil {
		if err := s.ValidateJSON(instance); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInstance, err)
		}
	}

	sess := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		Network:   network,
		Funds:     funds,
		Instance:  instance,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.log.Debug("session created", "session", sess.ID, "kind", kind, "network", network, "funds", uint64(funds))
	return sess, nil
}

// GetSession looks up a session by ID.
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// profileFor returns the configured profile for a network, or the
// built-in defaults.
func (m *Manager) profileFor(network string) *config.NetworkProfile {
	if p, ok := m.profiles[network]; ok {
		return p
	}
	return config.DefaultProfile(network)
}

// Compile runs one compile pass for a session and persists the result.
func (m *Manager) Compile(ctx context.Context, sessionID string, args map[string]json.RawMessage) (*Result, error) {
	sess, ok := m.GetSession(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	c, ok := m.registry.Get(sess.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, sess.Kind)
	}

	ctx, finish := m.obs.TrackOperation(ctx, "sapio.compile",
		observability.CompileOperation(sess.Kind, sess.Network)...)
	result, err := m.compile(ctx, sess, c, args)
	finish(err)
	return result, err
}

func (m *Manager) compile(ctx context.Context, sess *Session, c contract.Compiler, args map[string]json.RawMessage) (*Result, error) {
	cctx := contract.NewContext(sess.Network, sess.Funds).
		WithContext(ctx).
		WithLogger(m.log.With("session", sess.ID, "kind", sess.Kind))

	compiled, err := c.CompileJSON(cctx, sess.Instance, args)
	if err != nil {
		return nil, err
	}
	if err := checkDust(compiled, m.profileFor(sess.Network)); err != nil {
		return nil, err
	}

	bundle, err := json.Marshal(compiled)
	if err != nil {
		return nil, fmt.Errorf("session: encode bundle: %w", err)
	}
	bundleHash, err := m.archive.Put(ctx, bundle)
	if err != nil {
		return nil, fmt.Errorf("session: archive bundle: %w", err)
	}

	rcpt, err := receipt.Issue(m.signer, sess.Kind, compiled, args, time.Now())
	if err != nil {
		return nil, err
	}
	rcptJSON, err := json.Marshal(rcpt)
	if err != nil {
		return nil, fmt.Errorf("session: encode receipt: %w", err)
	}

	rec := &store.CompilationRecord{
		ID:           uuid.NewString(),
		SessionID:    sess.ID,
		Kind:         sess.Kind,
		Network:      compiled.Network,
		ContractHash: rcpt.ContractHash,
		BundleHash:   bundleHash,
		Receipt:      rcptJSON,
		CreatedAt:    rcpt.IssuedAt,
	}
	if err := m.store.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("session: persist record: %w", err)
	}

	m.log.Info("compilation complete",
		"session", sess.ID,
		"kind", sess.Kind,
		"record", rec.ID,
		"branches", len(compiled.Branches))

	return &Result{
		RecordID:   rec.ID,
		SessionID:  sess.ID,
		BundleHash: bundleHash,
		Compiled:   compiled,
		Receipt:    rcpt,
	}, nil
}

// checkDust rejects compiled templates paying non-zero amounts below
// the network's dust limit. Zero-value outputs carry data and pass.
func checkDust(c *contract.Compiled, profile *config.NetworkProfile) error {
	for _, b := range c.Branches {
		for _, t := range b.Templates {
			for _, out := range t.Outputs {
				if out.Amount > 0 && !profile.AboveDust(uint64(out.Amount)) {
					return &contract.Error{
						Code:   contract.CodeFunds,
						Branch: b.Name,
						Err: fmt.Errorf("output of %d sats is below the %s dust limit of %d sats",
							uint64(out.Amount), profile.Network, profile.DustLimit),
					}
				}
			}
		}
	}
	return nil
}

// Record fetches one compilation record.
func (m *Manager) Record(ctx context.Context, id string) (*store.CompilationRecord, error) {
	return m.store.Get(ctx, id)
}

// Records lists a session's compilation records, newest first.
func (m *Manager) Records(ctx context.Context, sessionID string, limit int) ([]*store.CompilationRecord, error) {
	return m.store.ListBySession(ctx, sessionID, limit)
}

// Bundle fetches an archived compilation bundle by hash.
func (m *Manager) Bundle(ctx context.Context, hash string) ([]byte, error) {
	return m.archive.Get(ctx, hash)
}
