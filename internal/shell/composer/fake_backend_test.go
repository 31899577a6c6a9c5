package composer

import (
	"fmt"
	"sync"

	"github.com/artpar/microplan/internal/core/backend"
	"github.com/artpar/microplan/internal/core/cluster"
	"github.com/artpar/microplan/internal/core/promise"
)

// groupRequest records one CreateDeployableGroup call.
type groupRequest struct {
	Name         string
	Containers   backend.ContainerSet
	DesiredCount int
}

// fakeBackend records every call and resolves listener addresses on demand.
type fakeBackend struct {
	mu        sync.Mutex
	kind      cluster.Kind
	calls     map[string]int
	order     []string
	addresses map[string]*promise.Output[backend.Address]
	groups    []groupRequest
	failOn    map[string]error
}

func newFakeBackend(kind cluster.Kind) *fakeBackend {
	return &fakeBackend{
		kind:      kind,
		calls:     make(map[string]int),
		addresses: make(map[string]*promise.Output[backend.Address]),
		failOn:    make(map[string]error),
	}
}

func (f *fakeBackend) record(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.order = append(f.order, op+":"+name)
	if err, ok := f.failOn[op]; ok {
		return err
	}
	return nil
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// resolveAll settles every pending listener address with a fake DNS name.
func (f *fakeBackend) resolveAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for name, addr := range f.addresses {
		_ = addr.Resolve(backend.Address{Host: name + ".elb.example.com", Port: portOf(name)})
	}
}

func portOf(listener string) int {
	var port int
	for i := len(listener) - 1; i >= 0; i-- {
		if listener[i] == '-' {
			_, _ = fmt.Sscanf(listener[i+1:], "%d", &port)
			break
		}
	}
	return port
}

func (f *fakeBackend) Kind() cluster.Kind {
	return f.kind
}

func (f *fakeBackend) EnsureCluster(name string) (backend.ClusterHandle, error) {
	if err := f.record("EnsureCluster", name); err != nil {
		return backend.ClusterHandle{}, err
	}
	return backend.ClusterHandle{Name: name}, nil
}

func (f *fakeBackend) CreateLoadBalancerFrontend(name string, scope backend.ClusterHandle) (backend.FrontendHandle, error) {
	if err := f.record("CreateLoadBalancerFrontend", name); err != nil {
		return backend.FrontendHandle{}, err
	}
	return backend.FrontendHandle{Name: name, Scope: scope}, nil
}

func (f *fakeBackend) CreateListener(name string, frontend backend.FrontendHandle, port int) (backend.ListenerHandle, *promise.Output[backend.Address], error) {
	if err := f.record("CreateListener", name); err != nil {
		return backend.ListenerHandle{}, nil, err
	}
	addr := promise.New[backend.Address]()
	f.mu.Lock()
	f.addresses[name] = addr
	f.mu.Unlock()
	return backend.ListenerHandle{Name: name, Frontend: frontend, Port: port}, addr, nil
}

func (f *fakeBackend) ResolveImage(name, source string) (backend.ImageReference, error) {
	if err := f.record("ResolveImage", name); err != nil {
		return backend.ImageReference{}, err
	}
	return backend.ImageReference{Name: name, Source: source, URI: promise.Resolved(source)}, nil
}

func (f *fakeBackend) CreateDeployableGroup(name string, scope backend.ClusterHandle, containers backend.ContainerSet, desiredCount int) (backend.GroupHandle, error) {
	if err := f.record("CreateDeployableGroup", name); err != nil {
		return backend.GroupHandle{}, err
	}
	f.mu.Lock()
	f.groups = append(f.groups, groupRequest{Name: name, Containers: containers, DesiredCount: desiredCount})
	f.mu.Unlock()
	return backend.GroupHandle{Name: name, Scope: scope, DesiredCount: desiredCount}, nil
}
