// Package session keeps the order summary stores of open checkouts.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/summary"
)

var (
	// ErrNotFound is returned for an unknown or already closed session.
	ErrNotFound = errors.New("session not found")
	// ErrLimitReached is returned by Open when the registry is full.
	ErrLimitReached = errors.New("too many open sessions")
	// ErrShutdown is returned by Open after CloseAll.
	ErrShutdown = errors.New("registry is shut down")
)

// Defaults used by New.
const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

type entry struct {
	store      *summary.Store
	lastAccess time.Time
}

// Registry owns the live stores. A store lives from Open until Close, an idle
// eviction or CloseAll.
type Registry struct {
	provider   coupon.Provider
	submitter  order.Submitter
	storeOpts  []summary.Option
	ttl        time.Duration
	interval   time.Duration
	limit      int
	now        func() time.Time
	lg         *zap.Logger
	storeCtx   context.Context
	stopStores context.CancelFunc

	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	shutdown bool
}

// Option configures a Registry.
type Option func(r *Registry)

// WithTTL sets how long a session may stay idle before it is evicted.
func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.ttl = ttl }
}

// WithSweepInterval sets how often Run looks for idle sessions.
func WithSweepInterval(d time.Duration) Option {
	return func(r *Registry) { r.interval = d }
}

// WithLimit caps the number of open sessions. Zero means unlimited.
func WithLimit(n int) Option {
	return func(r *Registry) { r.limit = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithStoreOptions sets options passed to every summary.New call.
func WithStoreOptions(opts ...summary.Option) Option {
	return func(r *Registry) { r.storeOpts = append(r.storeOpts, opts...) }
}

// New creates a Registry. Stores are bound to ctx rather than to the request
// that opened them, so ctx should live as long as the process.
func New(ctx context.Context, provider coupon.Provider, submitter order.Submitter, opts ...Option) *Registry {
	r := &Registry{
		provider:  provider,
		submitter: submitter,
		ttl:       DefaultTTL,
		interval:  DefaultSweepInterval,
		now:       time.Now,
		lg:        zctx.From(ctx).Named("session"),
		sessions:  make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.storeCtx, r.stopStores = context.WithCancel(zctx.Base(ctx, r.lg))
	return r
}

// Open starts a checkout for in and returns its id.
func (r *Registry) Open(in summary.Input) (uuid.UUID, *summary.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return uuid.Nil, nil, ErrShutdown
	}
	if r.limit > 0 && len(r.sessions) >= r.limit {
		return uuid.Nil, nil, ErrLimitReached
	}

	store, err := summary.New(r.storeCtx, r.provider, r.submitter, in, r.storeOpts...)
	if err != nil {
		return uuid.Nil, nil, err
	}

	id := uuid.New()
	r.sessions[id] = &entry{store: store, lastAccess: r.now()}
	r.lg.Debug("Session opened", zap.Stringer("session_id", id), zap.Int("items", len(in.ItemIDs)))

	return id, store, nil
}

// Get returns the store of an open session and marks it as used.
func (r *Registry) Get(id uuid.UUID) (*summary.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.lastAccess = r.now()
	return e.store, nil
}

// Close closes the session's store and forgets it.
func (r *Registry) Close(id uuid.UUID) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	e.store.Close()
	r.lg.Debug("Session closed", zap.Stringer("session_id", id))
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were closed.
func (r *Registry) Sweep() int {
	deadline := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*summary.Store
	for id, e := range r.sessions {
		if e.lastAccess.Before(deadline) {
			expired = append(expired, e.store)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is done, then closes every session.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.lg.Info("Session sweeper started",
		zap.Duration("ttl", r.ttl),
		zap.Duration("interval", r.interval),
	)
	for {
		select {
		case <-ctx.Done():
			r.CloseAll()
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.lg.Info("Evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// CloseAll closes every session, waits for their in-flight calls and rejects
// further Open calls.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.shutdown = true
	sessions := r.sessions
	r.sessions = make(map[uuid.UUID]*entry)
	r.mu.Unlock()

	for _, e := range sessions {
		e.store.Close()
	}
	r.stopStores()
	for _, e := range sessions {
		e.store.Wait()
	}
	if len(sessions) > 0 {
		r.lg.Info("Closed open sessions", zap.Int("count", len(sessions)))
	}
}
