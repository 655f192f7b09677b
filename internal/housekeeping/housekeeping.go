// Package housekeeping runs the background reaper that clears out
// terminal maintenance sessions left behind after MAINTENANCE_DONE or
// MAINTENANCE_FAILED, so they don't linger forever in the Session
// Manager's registry. It is driven by robfig/cron/v3, the same
// scheduling library the source material's own plugin scheduler builds
// on.
package housekeeping

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openstack-archive/fenix/internal/logger"
	"github.com/openstack-archive/fenix/internal/manager"
)

// Reaper periodically removes sessions that have settled into a terminal
// state.
type Reaper struct {
	manager *manager.Manager
	cron    *cron.Cron
	entryID cron.EntryID
}

// New constructs a Reaper against mgr. It does not start running until
// Start is called.
func New(mgr *manager.Manager) *Reaper {
	return &Reaper{
		manager: mgr,
		cron:    cron.New(),
	}
}

// Start schedules the sweep to run every interval and begins the cron
// scheduler's own goroutine.
func (r *Reaper) Start(interval time.Duration) error {
	spec := "@every " + interval.String()
	entryID, err := r.cron.AddFunc(spec, r.sweep)
	if err != nil {
		return err
	}
	r.entryID = entryID
	r.cron.Start()
	logger.Housekeeping().Info().Str("interval", interval.String()).Msg("housekeeping reaper started")
	return nil
}

// Stop cancels the scheduled sweep and waits for any in-flight run to
// finish.
func (r *Reaper) Stop() {
	r.cron.Remove(r.entryID)
	ctx := r.cron.Stop()
	<-ctx.Done()
	logger.Housekeeping().Info().Msg("housekeeping reaper stopped")
}

func (r *Reaper) sweep() {
	ctx := context.Background()
	log := logger.Housekeeping()

	removed := 0
	for _, id := range r.manager.List() {
		engine, ok := r.manager.Get(id)
		if !ok {
			continue
		}
		if !engine.State().IsTerminal() {
			continue
		}

		if err := r.manager.Remove(ctx, id); err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("failed to remove terminal session")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("swept terminal sessions")
	}
}
