package graphql

import (
	"context"
	"sync"
)

// Builder constructs clients. *Factory implements it.
type Builder interface {
	Build(ctx context.Context) *Client
}

// Provider owns the shared client and swaps it whenever the active
// credentials change.
type Provider struct {
	builder Builder

	rebuildMu sync.Mutex // serializes rebuilds
	mu        sync.RWMutex
	current   *Client
	listeners []func(*Client)

	ready     chan struct{}
	readyOnce sync.Once
}

// NewProvider creates a provider. Call Rebuild once to build the first client.
func NewProvider(b Builder) *Provider {
	return &Provider{builder: b, ready: make(chan struct{})}
}

// Current returns the shared client. Before the first build it is disconnected.
func (p *Provider) Current() *Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return Disconnected()
	}
	return p.current
}

// Rebuild drops the current client's cache, builds a replacement and
// swaps it in. The provider always holds a client afterwards, possibly a
// disconnected one.
func (p *Provider) Rebuild(ctx context.Context) *Client {
	p.rebuildMu.Lock()
	defer p.rebuildMu.Unlock()

	p.mu.RLock()
	old := p.current
	p.mu.RUnlock()
	if old != nil {
		old.Cache().Reset()
	}

	next := p.builder.Build(ctx)
	if next == nil {
		next = Disconnected()
	}

	p.mu.Lock()
	p.current = next
	listeners := append([]func(*Client){}, p.listeners...)
	p.mu.Unlock()

	p.readyOnce.Do(func() { close(p.ready) })

	for _, fn := range listeners {
		fn(next)
	}
	return next
}

// ClearStore empties the current client's cache
func (p *Provider) ClearStore(ctx context.Context) error {
	return p.Current().ClearStore(ctx)
}

// OnRebuild registers fn to run after every rebuild
func (p *Provider) OnRebuild(fn func(*Client)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Ready is closed once the first rebuild has finished
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}
