package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	pool "github.com/jolestar/go-commons-pool/v2"

	"github.com/yndnr/kvgate-go/internal/core/domain"
)

// maxIdlePerCommand bounds how many idle handler instances a command keeps.
const maxIdlePerCommand = 64

// Registry maps command names to descriptors and handler pools.
// Register all commands before serving; lookups are lock-free after that.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	desc Descriptor
	pool *pool.ObjectPool
}

// handlerFactory adapts a Factory to the pool's object lifecycle.
type handlerFactory struct {
	newHandler Factory
}

func (f *handlerFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	h := f.newHandler()
	if h == nil {
		return nil, fmt.Errorf("command factory returned nil handler")
	}
	return pool.NewPooledObject(h), nil
}

func (f *handlerFactory) DestroyObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

func (f *handlerFactory) ValidateObject(ctx context.Context, object *pool.PooledObject) bool {
	_, ok := object.Object.(Handler)
	return ok
}

func (f *handlerFactory) ActivateObject(ctx context.Context, object *pool.PooledObject) error {
	return nil
}

// PassivateObject clears per-command state before the handler is idle.
func (f *handlerFactory) PassivateObject(ctx context.Context, object *pool.PooledObject) error {
	if h, ok := object.Object.(Handler); ok {
		h.Reset()
	}
	return nil
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a command. Names are matched case-insensitively.
func (r *Registry) Register(ctx context.Context, desc Descriptor, factory Factory) error {
	if desc.Name == "" || factory == nil {
		return fmt.Errorf("register command: name and factory are required")
	}
	desc.Name = strings.ToLower(desc.Name)

	cfg := pool.NewDefaultPoolConfig()
	cfg.MaxTotal = -1
	cfg.MaxIdle = maxIdlePerCommand
	cfg.BlockWhenExhausted = false

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.Name]; exists {
		return fmt.Errorf("register command %q: already registered", desc.Name)
	}
	r.entries[desc.Name] = &entry{
		desc: desc,
		pool: pool.NewObjectPool(ctx, &handlerFactory{newHandler: factory}, cfg),
	}
	return nil
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	e, ok := r.entries[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, false
	}
	return e.desc, true
}

// Lease is a handler borrowed from the registry for one command.
type Lease struct {
	Desc    Descriptor
	Handler Handler
	pool    *pool.ObjectPool
}

// Release returns the handler to its pool. It is safe to call once per lease.
func (l *Lease) Release(ctx context.Context) {
	if l == nil || l.pool == nil {
		return
	}
	_ = l.pool.ReturnObject(ctx, l.Handler)
	l.pool = nil
}

// Acquire resolves name and borrows a handler instance for it.
// An unknown name yields domain.ErrUnknownCommand.
func (r *Registry) Acquire(ctx context.Context, name string) (*Lease, error) {
	lower := strings.ToLower(name)
	r.mu.RLock()
	e, ok := r.entries[lower]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrUnknownCommand.WithDetails("'" + lower + "'")
	}

	obj, err := e.pool.BorrowObject(ctx)
	if err != nil {
		return nil, fmt.Errorf("borrow handler for %q: %w", lower, err)
	}
	return &Lease{Desc: e.desc, Handler: obj.(Handler), pool: e.pool}, nil
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every handler pool.
func (r *Registry) Close(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		e.pool.Close(ctx)
	}
}
