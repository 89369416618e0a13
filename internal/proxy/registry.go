package proxy

import (
	"net"
	"sync"
)

// registry tracks bound listeners so Stop can close them from outside the
// accept loops. Every listener is closed exactly once, either by remove or by
// closeAll.
type registry struct {
	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closed    bool
}

// add registers ln. Once closeAll has run, add closes ln itself and returns
// false.
func (r *registry) add(ln net.Listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		_ = ln.Close()
		return false
	}
	if r.listeners == nil {
		r.listeners = make(map[net.Listener]struct{})
	}
	r.listeners[ln] = struct{}{}
	return true
}

// remove unregisters and closes ln if it is still registered.
func (r *registry) remove(ln net.Listener) {
	r.mu.Lock()
	_, ok := r.listeners[ln]
	delete(r.listeners, ln)
	r.mu.Unlock()

	if ok {
		_ = ln.Close()
	}
}

// closeAll closes every registered listener and refuses later additions.
func (r *registry) closeAll() {
	r.mu.Lock()
	lns := r.listeners
	r.listeners = nil
	r.closed = true
	r.mu.Unlock()

	for ln := range lns {
		_ = ln.Close()
	}
}

func (r *registry) addrs() []net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]net.Addr, 0, len(r.listeners))
	for ln := range r.listeners {
		out = append(out, ln.Addr())
	}
	return out
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}
