// Package modsrc is the controller side of the GetModule import fallback:
// a registry of module source the controller is willing to serve to a
// remote interpreter whose local registry.Registry lookup missed.
package modsrc

import "sync"

// Registry holds named source blobs a remote interpreter can fetch over
// handle 0.
type Registry struct {
	mu  sync.Mutex
	src map[string][]byte
}

// New returns an empty source registry.
func New() *Registry {
	return &Registry{src: map[string][]byte{}}
}

// Publish makes src available under name to any remote interpreter that
// asks for it.
func (r *Registry) Publish(name string, src []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.src[name] = src
}

// Lookup returns the published source for name, and whether it was found.
func (r *Registry) Lookup(name string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	src, ok := r.src[name]
	return src, ok
}

// Installer is supplied by a remote interpreter to turn fetched source
// bytes into something it can actually call. Go has no imp.load_module
// equivalent, so unlike original_source's importer (which never installs
// what it fetches), this contract makes installation the caller's explicit
// job.
type Installer func(name string, src []byte) error
