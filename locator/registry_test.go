package locator_test

import (
	"sync"
	"testing"

	"github.com/flarerpc/flare/locator"
)

func newEcho(name string) *locator.MethodDescriptor[string] {
	return &locator.MethodDescriptor[string]{Key: name, FullName: name}
}

// TestAddDeleteService is spec.md §8's method locator property: after
// add_service all methods are resolvable; after delete_service none are.
func TestAddDeleteService(t *testing.T) {
	reg := locator.NewRegistry[string]()
	reg.RegisterMethodProvider(
		func(m *locator.MethodDescriptor[string]) { reg.RegisterMethod(m) },
		func(m *locator.MethodDescriptor[string]) { reg.DeregisterMethod(m) },
	)

	svc := &locator.ServiceDescriptor[string]{
		Name: "EchoService",
		Methods: []*locator.MethodDescriptor[string]{
			newEcho("EchoService.Echo"),
			newEcho("EchoService.Ping"),
		},
	}

	cache := reg.NewCache()
	reg.AddService(svc)
	for _, m := range svc.Methods {
		if _, ok := cache.TryGetMethodDesc(m.Key); !ok {
			t.Fatalf("method %s not resolvable after AddService", m.Key)
		}
	}

	reg.DeleteService(svc)
	for _, m := range svc.Methods {
		if _, ok := cache.TryGetMethodDesc(m.Key); ok {
			t.Fatalf("method %s still resolvable after DeleteService", m.Key)
		}
	}
}

// TestAddServiceRefCounted exercises the ref-counted first-add/last-delete
// provider invocation semantics.
func TestAddServiceRefCounted(t *testing.T) {
	reg := locator.NewRegistry[string]()
	var adds, removes int
	reg.RegisterMethodProvider(
		func(*locator.MethodDescriptor[string]) { adds++ },
		func(*locator.MethodDescriptor[string]) { removes++ },
	)
	svc := &locator.ServiceDescriptor[string]{Name: "S", Methods: []*locator.MethodDescriptor[string]{newEcho("S.M")}}

	reg.AddService(svc)
	reg.AddService(svc)
	if adds != 1 {
		t.Fatalf("adds = %d, want 1 (ref-counted)", adds)
	}
	reg.DeleteService(svc)
	if removes != 0 {
		t.Fatalf("removes = %d, want 0 before last delete", removes)
	}
	reg.DeleteService(svc)
	if removes != 1 {
		t.Fatalf("removes = %d, want 1 after last delete", removes)
	}
}

// TestCacheConvergesAfterWrite is spec.md §8's concurrency property:
// cached reads converge to the latest snapshot within one read after a
// write completes.
func TestCacheConvergesAfterWrite(t *testing.T) {
	reg := locator.NewRegistry[string]()
	cache := reg.NewCache()

	m := newEcho("S.M")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.RegisterMethod(m)
	}()
	wg.Wait()

	if _, ok := cache.TryGetMethodDesc("S.M"); !ok {
		t.Fatal("cache did not observe method registered before the read")
	}
}
