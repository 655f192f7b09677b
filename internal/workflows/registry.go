// Package workflows holds named Workflow implementations (C7 policy) and
// the registry that resolves a session's "workflow" field to one of them.
//
// Workflows register themselves by name from an init() function, the same
// auto-registration idiom used for the plugin registry that inspired this
// one: a package-level factory map guarded by a mutex, populated at import
// time, with "default" reserved for the canonical implementation.
package workflows

import (
	"fmt"
	"sync"

	"github.com/openstack-archive/fenix/internal/session"
)

// Factory builds a fresh Workflow instance. Workflows are stateless between
// sessions, so the registry hands out factories rather than shared
// instances.
type Factory func() session.Workflow

var (
	mu    sync.RWMutex
	named = make(map[string]Factory)
)

// Register adds a named workflow implementation to the registry. Called
// from each workflow's init().
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	named[name] = factory
}

// Get resolves a workflow name to a factory. The empty string resolves to
// "default". An unknown name is reported so the caller (the HTTP frontend,
// at session-creation time) can reject it before a session is ever
// started, instead of discovering the failure only once its worker runs.
func Get(name string) (Factory, error) {
	if name == "" {
		name = "default"
	}
	mu.RLock()
	defer mu.RUnlock()
	f, ok := named[name]
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", name)
	}
	return f, nil
}

// Names returns every registered workflow name.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(named))
	for n := range named {
		out = append(out, n)
	}
	return out
}
