// Package locator is flare's method locator: a registry mapping
// protocol-specific method keys to method descriptors, with a
// lock-free-read path backed by a versioned per-caller cache, per
// spec.md §4.3.
//
// Grounded on the teacher's method-locator-shaped code: none of the
// retrieved aistore packages register RPC methods this way (aistore
// dispatches HTTP routes, not a versioned method table), so this
// package follows spec.md §4.3/§9's own description directly — the one
// module where the teacher offers no structural analogue to adapt, only
// its general "versioned snapshot, shared lock on refresh" idiom
// (mirrored from transport's collector state refresh pattern).
package locator

import "sync"
import "sync/atomic"

// MethodDescriptor is spec.md §3's method descriptor: normalized name,
// protocol-specific key, and cached request/response prototypes.
type MethodDescriptor[K comparable] struct {
	Key         K
	FullName    string // e.g. "flare.testing.EchoService.Echo"
	ServiceName string
	MethodName  string
	NewRequest  func() any
	NewResponse func() any
}

// ServiceDescriptor groups the methods a protocol registers/deregisters
// together, per spec.md §4.3's add_service/delete_service.
type ServiceDescriptor[K comparable] struct {
	Name    string
	Methods []*MethodDescriptor[K]
}

type providerPair[K comparable] struct {
	add, remove func(*MethodDescriptor[K])
}

// Registry is the per-protocol-identity singleton of spec.md §4.3: one
// instantiation per protocol's MethodKey type (string for FlareStd/Trpc,
// [2]uint16 for Svrkit's (magic,cmd), etc).
type Registry[K comparable] struct {
	mu        sync.RWMutex
	byKey     map[K]*MethodDescriptor[K]
	byName    map[string]K
	svcRefs   map[string]int
	providers []providerPair[K]
	version   atomic.Uint64
}

func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{
		byKey:   make(map[K]*MethodDescriptor[K]),
		byName:  make(map[string]K),
		svcRefs: make(map[string]int),
	}
}

// RegisterMethod inserts into both maps; a duplicate key or name is a
// program error, per spec.md §4.3.
func (r *Registry[K]) RegisterMethod(desc *MethodDescriptor[K]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byKey[desc.Key]; dup {
		panic("locator: duplicate method key for " + desc.FullName)
	}
	if _, dup := r.byName[desc.FullName]; dup {
		panic("locator: duplicate method name " + desc.FullName)
	}
	r.byKey[desc.Key] = desc
	r.byName[desc.FullName] = desc.Key
	r.version.Add(1)
}

func (r *Registry[K]) DeregisterMethod(desc *MethodDescriptor[K]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, desc.Key)
	delete(r.byName, desc.FullName)
	r.version.Add(1)
}

// TryGetMethodDescDirect is the uncached read path (takes the shared
// lock every call); most callers should instead use a Cache.
func (r *Registry[K]) TryGetMethodDescDirect(key K) (*MethodDescriptor[K], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byKey[key]
	return d, ok
}

// RegisterMethodProvider opts a protocol driver in to AddService/
// DeleteService notifications; called once at driver init.
func (r *Registry[K]) RegisterMethodProvider(add, remove func(*MethodDescriptor[K])) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = append(r.providers, providerPair[K]{add: add, remove: remove})
}

// AddService is reference-counted: providers are invoked for every
// method only on the first Add for this service name. Providers run
// after the lock is released, so they may call RegisterMethod.
func (r *Registry[K]) AddService(svc *ServiceDescriptor[K]) {
	r.mu.Lock()
	r.svcRefs[svc.Name]++
	first := r.svcRefs[svc.Name] == 1
	providers := append([]providerPair[K](nil), r.providers...)
	r.mu.Unlock()
	if !first {
		return
	}
	for _, m := range svc.Methods {
		for _, p := range providers {
			p.add(m)
		}
	}
}

// DeleteService invokes providers' remove callback only on the last
// matching Delete for this service name. Providers run after the lock
// is released, so they may call DeregisterMethod.
func (r *Registry[K]) DeleteService(svc *ServiceDescriptor[K]) {
	r.mu.Lock()
	r.svcRefs[svc.Name]--
	last := r.svcRefs[svc.Name] <= 0
	if last {
		delete(r.svcRefs, svc.Name)
	}
	providers := append([]providerPair[K](nil), r.providers...)
	r.mu.Unlock()
	if !last {
		return
	}
	for _, m := range svc.Methods {
		for _, p := range providers {
			p.remove(m)
		}
	}
}

// Version is read by Cache to detect staleness.
func (r *Registry[K]) version_() uint64 { return r.version.Load() }

// snapshot copies the key->descriptor map under the registry's shared
// lock, for Cache.refresh.
func (r *Registry[K]) snapshot() (map[K]*MethodDescriptor[K], uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := make(map[K]*MethodDescriptor[K], len(r.byKey))
	for k, v := range r.byKey {
		m[k] = v
	}
	return m, r.version.Load()
}
