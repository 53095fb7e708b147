// Package permission holds the runtime permission grants the connection state
// machine asks for before touching the transport.
package permission

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/bandlink/internal/device"
	"github.com/banshee-data/bandlink/internal/monitoring"
)

var (
	_ device.Permissions        = (*Policy)(nil)
	_ device.RevocationNotifier = (*Policy)(nil)
)

// Policy is an operator-controlled set of grants. Revoking a grant notifies
// listeners so a running session can be torn down.
type Policy struct {
	mu        sync.Mutex
	granted   map[device.Permission]bool
	listeners map[string]func(device.Permission)
}

// NewPolicy creates a Policy with the given initial grants. Permissions not in
// the map are refused.
func NewPolicy(initial map[device.Permission]bool) *Policy {
	p := &Policy{
		granted:   make(map[device.Permission]bool),
		listeners: make(map[string]func(device.Permission)),
	}
	for k, v := range initial {
		p.granted[k] = v
	}
	return p
}

// Request reports whether perm is granted.
func (p *Policy) Request(ctx context.Context, perm device.Permission) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ok := p.granted[perm]
	if !ok {
		monitoring.Logf("permission %s refused", perm)
	}
	return ok, nil
}

func (p *Policy) Granted(perm device.Permission) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted[perm]
}

// Set grants or revokes perm. Revoking a granted permission notifies every
// listener after the change is applied.
func (p *Policy) Set(perm device.Permission, granted bool) error {
	if !known(perm) {
		return fmt.Errorf("unknown permission %q", perm)
	}

	p.mu.Lock()
	was := p.granted[perm]
	p.granted[perm] = granted
	var notify []func(device.Permission)
	if was && !granted {
		for _, fn := range p.listeners {
			notify = append(notify, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range notify {
		fn(perm)
	}
	if was != granted {
		monitoring.Logf("permission %s granted=%t", perm, granted)
	}
	return nil
}

// Grant is shorthand for Set(perm, true).
func (p *Policy) Grant(perm device.Permission) error { return p.Set(perm, true) }

// Revoke is shorthand for Set(perm, false).
func (p *Policy) Revoke(perm device.Permission) error { return p.Set(perm, false) }

// List returns every required permission and whether it is granted.
func (p *Policy) List() map[device.Permission]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[device.Permission]bool, len(device.RequiredPermissions))
	for _, perm := range device.RequiredPermissions {
		out[perm] = p.granted[perm]
	}
	return out
}

// Names returns the known permission names in sorted order.
func Names() []string {
	names := make([]string, 0, len(device.RequiredPermissions))
	for _, perm := range device.RequiredPermissions {
		names = append(names, string(perm))
	}
	sort.Strings(names)
	return names
}

// OnRevoked registers fn for revocations.
func (p *Policy) OnRevoked(fn func(device.Permission)) func() {
	id := uuid.NewString()
	p.mu.Lock()
	p.listeners[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

func known(perm device.Permission) bool {
	return slices.Contains(device.RequiredPermissions, perm)
}
