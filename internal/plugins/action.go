// Package plugins implements the Action Plugin framework (§4.9): host-level
// maintenance steps declared by a session and run in series against each
// host once it has been emptied. Plugins register themselves by name from
// an init(), the same auto-registration idiom the source material's own
// plugin marketplace uses, scaled down to the single concern this domain
// needs: one factory per plugin name.
package plugins

import (
	"context"
	"fmt"
	"sync"

	"github.com/openstack-archive/fenix/internal/logger"
	"github.com/openstack-archive/fenix/internal/session"
)

// ActionPlugin performs one host-level maintenance step.
type ActionPlugin interface {
	// Run executes the plugin's action against hostname, returning an
	// error only for conditions the caller should treat as the plugin
	// itself having failed to run (as opposed to reporting a completed,
	// business-level failure through the Store).
	Run(ctx context.Context, sessionID, hostname string) error
}

// Factory builds a fresh ActionPlugin instance.
type Factory func() ActionPlugin

var (
	mu    sync.RWMutex
	named = make(map[string]Factory)
)

// Register adds a named plugin implementation to the registry. Called
// from each plugin's init().
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	named[name] = factory
}

// Get resolves a plugin name to a factory.
func Get(name string) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := named[name]
	if !ok {
		return nil, fmt.Errorf("unknown action plugin %q", name)
	}
	return f, nil
}

// Names returns every registered plugin name.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(named))
	for n := range named {
		out = append(out, n)
	}
	return out
}

// Runner executes a session's host-type action plugins against a host and
// records each execution through the Store. It satisfies
// session.ActionPluginRunner.
type Runner struct {
	Store session.Store
}

// RunHostPlugins runs every host-type plugin against hostname, in series:
// many host-level maintenance actions (firmware/BIOS updates, hardware
// diagnostics) need exclusive access to the machine, so running them
// concurrently would risk them stepping on each other.
func (r *Runner) RunHostPlugins(ctx context.Context, sessionID, hostname string, ps []session.ActionPlugin) error {
	log := logger.Workflow().With().Str("session_id", sessionID).Str("host", hostname).Logger()

	for _, p := range ps {
		if p.Type != session.ActionPluginHost {
			continue
		}

		factory, err := Get(p.Plugin)
		if err != nil {
			log.Error().Err(err).Str("plugin", p.Plugin).Msg("action plugin not registered")
			if rerr := r.record(ctx, sessionID, p.Plugin, hostname, "FAILED"); rerr != nil {
				return rerr
			}
			continue
		}

		if err := r.record(ctx, sessionID, p.Plugin, hostname, "RUNNING"); err != nil {
			return err
		}

		state := "DONE"
		if err := factory().Run(ctx, sessionID, hostname); err != nil {
			log.Error().Err(err).Str("plugin", p.Plugin).Msg("action plugin failed")
			state = "FAILED"
		}

		if err := r.record(ctx, sessionID, p.Plugin, hostname, state); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) record(ctx context.Context, sessionID, plugin, hostname, state string) error {
	return r.Store.UpsertActionPluginInstance(ctx, session.ActionPluginInstance{
		SessionID: sessionID,
		Plugin:    plugin,
		Hostname:  hostname,
		State:     state,
	})
}
