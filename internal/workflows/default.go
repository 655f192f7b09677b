package workflows

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/openstack-archive/fenix/internal/apperrors"
	"github.com/openstack-archive/fenix/internal/logger"
	"github.com/openstack-archive/fenix/internal/session"
)

func init() {
	Register("default", func() session.Workflow { return &Default{} })
}

// Default is the canonical Workflow: the floating_ip-details variant, where
// an instance is flagged HA-sensitive by carrying details="floating_ip"
// rather than a separate boolean, and where every in-scope compute host is
// disabled in one pass at the start of START_MAINTENANCE rather than one at
// a time.
type Default struct{}

const (
	migratePollInterval = 5 * time.Second
	migratePollAttempts = 36 // ~3 minutes
	emptyPollInterval   = 5 * time.Second
	emptyPollAttempts   = 48 // ~4 minutes
)

var migrateBackoffs = []time.Duration{90 * time.Second, 150 * time.Second}

// Maintenance implements the MAINTENANCE state: it populates the session's
// projects and instances from the compute plane, confirms every affected
// project, and decides the next step.
func (Default) Maintenance(ctx context.Context, e *session.Engine) (session.State, error) {
	log := logger.Workflow().With().Str("session_id", e.SessionID).Logger()

	if err := refreshInstances(ctx, e); err != nil {
		return "", err
	}

	if !alarmSubscriptionsSatisfied(e) {
		log.Warn().Msg("not every affected project is subscribed to the maintenance alarm")
		return session.StateMaintenanceFailed, nil
	}

	replyAt := e.MaintenanceAt.Add(-e.Config.ProjectMaintenanceReply)
	if !replyAt.After(time.Now()) {
		log.Warn().Time("maintenance_at", e.MaintenanceAt).Time("reply_at", replyAt).Msg("no time left for projects to answer")
		return session.StateMaintenanceFailed, nil
	}

	if err := e.Data.SetProjectsState(ctx, session.StateMaintenance); err != nil {
		return "", err
	}

	for _, pid := range e.Data.ProjectNames() {
		n := session.ProjectNotification{
			SessionID:   e.SessionID,
			ProjectID:   pid,
			InstanceIDs: e.Data.InstanceIDsByProject(pid),
			State:       string(session.StateMaintenance),
			ActionsAt:   e.MaintenanceAt,
			ReplyAt:     replyAt,
			Metadata:    e.Meta,
			ReplyURL:    e.ReplyURL(pid),
		}
		if err := e.Notify.ProjectNotify(ctx, n); err != nil {
			return "", err
		}
	}

	e.Timers.Start("MAINTENANCE_TIMEOUT", time.Until(replyAt))
	if !e.WaitProjectsState(ctx, session.StateMaintenance, "MAINTENANCE_TIMEOUT") {
		log.Warn().Msg("not every project acked MAINTENANCE in time")
		return session.StateMaintenanceFailed, nil
	}

	next := decideAfterMaintenance(e)

	if wait := time.Until(e.MaintenanceAt); wait > 0 {
		sleepUntil(ctx, e, wait)
	}

	return next, nil
}

func decideAfterMaintenance(e *session.Engine) session.State {
	if len(e.Data.EmptyComputes()) > 0 {
		return session.StateStartMaintenance
	}
	if needScaleIn(e) {
		return session.StateScaleIn
	}
	return session.StatePrepareMaintenance
}

// sleepUntil blocks in 1-second increments until d has elapsed, the engine
// is stopped, or ctx is done, mirroring the cooperative idling the rest of
// the engine uses instead of a single long time.Sleep.
func sleepUntil(ctx context.Context, e *session.Engine, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if e.Stopped() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// alarmSubscriptionsSatisfied models the check that every affected project
// is subscribed to the maintenance.scheduled alarm. The component set this
// workflow is built against (C1-C8) has no alarm/monitoring adapter, so
// this always reports satisfied; wiring a real check is future work for
// whichever component ends up owning alarm subscriptions.
func alarmSubscriptionsSatisfied(e *session.Engine) bool {
	logger.Workflow().Debug().Str("session_id", e.SessionID).Msg("alarm subscription check not modeled, treating as satisfied")
	return true
}

// needScaleIn reports whether the in-scope compute hosts have enough spare
// vcpu capacity between them to empty one more host without maintenance
// falling behind, i.e. free vcpus across the set is at least one host's
// total vcpus.
func needScaleIn(e *session.Engine) bool {
	hyps, err := e.Compute.ListHypervisors(context.Background())
	if err != nil || len(hyps) == 0 {
		return false
	}
	hosts := e.Data.ComputeHosts()
	if len(hosts) == 0 {
		return false
	}
	inScope := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		inScope[h.Hostname] = true
	}

	var free int
	var oneHostVCPUs int
	for _, hv := range hyps {
		if !inScope[hv.Hostname] {
			continue
		}
		free += hv.VCPUs - hv.VCPUsUsed
		if oneHostVCPUs == 0 {
			oneHostVCPUs = hv.VCPUs
		}
	}
	return oneHostVCPUs > 0 && free >= oneHostVCPUs
}

// findHostToBeEmpty picks the compute host least disruptive to empty next:
// among hosts carrying no floating-ip instance, the one with the most free
// vcpu capacity, ties broken by fewer non-floating-ip instances. If every
// host carries a floating-ip instance, the last host in hostname order is
// picked, since one has to be chosen regardless.
func findHostToBeEmpty(ctx context.Context, e *session.Engine) (string, error) {
	hosts := e.Data.ComputeHosts()
	if len(hosts) == 0 {
		return "", nil
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Hostname < hosts[j].Hostname })

	hyps, err := e.Compute.ListHypervisors(ctx)
	if err != nil {
		return "", err
	}
	freeByHost := make(map[string]int, len(hyps))
	for _, hv := range hyps {
		freeByHost[hv.Hostname] = hv.VCPUs - hv.VCPUsUsed
	}

	var best string
	bestFree := -1
	bestNonFloating := -1
	for _, h := range hosts {
		if h.Maintained {
			continue
		}
		insts := e.Data.InstancesByHost(h.Hostname)
		nonFloating := 0
		hasFloating := false
		for _, i := range insts {
			if i.HasFloatingIP() {
				hasFloating = true
			} else {
				nonFloating++
			}
		}
		if hasFloating {
			continue
		}
		free := freeByHost[h.Hostname]
		if free > bestFree || (free == bestFree && (bestNonFloating == -1 || nonFloating < bestNonFloating)) {
			best = h.Hostname
			bestFree = free
			bestNonFloating = nonFloating
		}
	}
	if best != "" {
		return best, nil
	}

	// No floating-ip-free candidate: fall back to the last unmaintained host
	// in hostname order, since one must still be picked.
	for i := len(hosts) - 1; i >= 0; i-- {
		if !hosts[i].Maintained {
			return hosts[i].Hostname, nil
		}
	}
	return "", nil
}

// confirmHostToBeEmptied scopes state to the projects with an instance on
// host, notifies them with the allowed evacuation actions, and waits for
// every one of them to ack.
func confirmHostToBeEmptied(ctx context.Context, e *session.Engine, host string, target session.State) (bool, error) {
	if err := e.Data.SetProjectsStateAndHostsInstances(ctx, target, []string{host}); err != nil {
		return false, err
	}

	now := time.Now()
	replyAt := now.Add(e.Config.ProjectMaintenanceReply)
	timerName := string(target) + "_TIMEOUT"

	affected := map[string]bool{}
	for _, i := range e.Data.InstancesByHost(host) {
		affected[i.ProjectID] = true
	}

	for pid := range affected {
		n := session.ProjectNotification{
			SessionID:      e.SessionID,
			ProjectID:      pid,
			InstanceIDs:    e.Data.StateInstanceIDs(pid),
			AllowedActions: []session.Action{session.ActionMigrate, session.ActionLiveMigrate, session.ActionOwnAction},
			State:          string(target),
			ActionsAt:      now,
			ReplyAt:        replyAt,
			Metadata:       e.Meta,
			ReplyURL:       e.ReplyURL(pid),
		}
		if err := e.Notify.ProjectNotify(ctx, n); err != nil {
			return false, err
		}
	}

	e.Timers.Start(timerName, e.Config.ProjectMaintenanceReply)
	return e.WaitProjectsState(ctx, target, timerName), nil
}

// actionsToHaveEmptyHost drives every affected project's chosen evacuation
// action to completion, then waits for the host's vcpu usage to drop to
// zero.
func actionsToHaveEmptyHost(ctx context.Context, e *session.Engine, host string) (bool, error) {
	log := logger.Workflow().With().Str("session_id", e.SessionID).Str("host", host).Logger()

	for _, inst := range e.Data.InstancesByHost(host) {
		action := e.Data.ProjectInstanceAction(inst.ProjectID, inst.InstanceID)
		switch action {
		case session.ActionMigrate:
			ok, err := migrateServer(ctx, e, inst)
			if err != nil {
				return false, err
			}
			if !ok {
				log.Warn().Str("instance_id", inst.InstanceID).Msg("migration failed")
				return false, nil
			}
			if err := e.Data.MarkInstanceActionDone(ctx, inst.InstanceID); err != nil {
				return false, err
			}
			if err := e.Notify.ProjectNotify(ctx, session.ProjectNotification{
				SessionID:   e.SessionID,
				ProjectID:   inst.ProjectID,
				InstanceIDs: []string{inst.InstanceID},
				State:       "INSTANCE_ACTION_DONE",
				ActionsAt:   time.Now(),
				ReplyAt:     time.Now(),
				Metadata:    e.Meta,
				ReplyURL:    e.ReplyURL(inst.ProjectID),
			}); err != nil {
				return false, err
			}
		case session.ActionOwnAction:
			// the project handles its own evacuation; nothing to drive here.
		case session.ActionLiveMigrate:
			log.Warn().Str("instance_id", inst.InstanceID).Msg("live migrate is not supported by this compute adapter")
			return false, apperrors.UnsupportedAction(string(action))
		default:
			log.Warn().Str("instance_id", inst.InstanceID).Msg("no evacuation action chosen for instance")
			return false, nil
		}
	}

	return waitHostEmpty(ctx, e, host), nil
}

// migrateServer drives the cold-migrate sub-protocol for a single instance:
// issue the migrate, retrying a bad-request rejection with a bounded
// backoff, then poll until the server reports resized (confirm and
// succeed) or error (fail) or the poll budget is exhausted.
func migrateServer(ctx context.Context, e *session.Engine, inst session.Instance) (bool, error) {
	attempt := 0
	for {
		err := e.Compute.ServerMigrate(ctx, inst.InstanceID)
		if err == nil {
			break
		}
		if errors.Is(err, session.ErrBadRequest) && attempt < len(migrateBackoffs) {
			select {
			case <-ctx.Done():
				return false, nil
			case <-time.After(migrateBackoffs[attempt]):
			}
			attempt++
			continue
		}
		logger.Workflow().Warn().Err(err).Str("instance_id", inst.InstanceID).Msg("server_migrate rejected")
		return false, nil
	}

	for i := 0; i < migratePollAttempts; i++ {
		srv, err := e.Compute.ServerGet(ctx, inst.InstanceID)
		if err != nil {
			return false, nil
		}
		switch srv.VMState {
		case "resized":
			if err := e.Compute.ServerConfirmResize(ctx, inst.InstanceID); err != nil {
				return false, nil
			}
			if err := e.Data.SetInstanceHost(ctx, inst.InstanceID, srv.Host); err != nil {
				return false, err
			}
			return true, nil
		case "error":
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(migratePollInterval):
		}
	}
	return false, nil
}

// waitHostEmpty polls the compute host's vcpu usage until it reaches zero
// or the poll budget is exhausted.
func waitHostEmpty(ctx context.Context, e *session.Engine, host string) bool {
	for i := 0; i < emptyPollAttempts; i++ {
		hyps, err := e.Compute.ListHypervisors(ctx)
		if err == nil {
			for _, hv := range hyps {
				if hv.Hostname == host && hv.VCPUsUsed == 0 {
					return true
				}
			}
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(emptyPollInterval):
		}
	}
	return false
}

// ScaleIn implements SCALE_IN: ask every project to shrink, wait for the
// acks, then re-evaluate whether a host is now empty.
func (Default) ScaleIn(ctx context.Context, e *session.Engine) (session.State, error) {
	if err := e.Data.SetProjectsState(ctx, session.StateScaleIn); err != nil {
		return "", err
	}

	now := time.Now()
	deadline := now.Add(e.Config.ProjectScaleInReply)
	for _, pid := range e.Data.ProjectNames() {
		n := session.ProjectNotification{
			SessionID:   e.SessionID,
			ProjectID:   pid,
			InstanceIDs: e.Data.InstanceIDsByProject(pid),
			State:       string(session.StateScaleIn),
			ActionsAt:   deadline,
			ReplyAt:     deadline,
			Metadata:    e.Meta,
			ReplyURL:    e.ReplyURL(pid),
		}
		if err := e.Notify.ProjectNotify(ctx, n); err != nil {
			return "", err
		}
	}

	e.Timers.Start("SCALE_IN_TIMEOUT", e.Config.ProjectScaleInReply)
	if !e.WaitProjectsState(ctx, session.StateScaleIn, "SCALE_IN_TIMEOUT") {
		return session.StateMaintenanceFailed, nil
	}

	if err := refreshInstances(ctx, e); err != nil {
		return "", err
	}

	if len(e.Data.EmptyComputes()) > 0 {
		return session.StateStartMaintenance, nil
	}
	if needScaleIn(e) {
		return session.StateScaleIn, nil
	}
	return session.StatePrepareMaintenance, nil
}

// PrepareMaintenance implements PREPARE_MAINTENANCE: pick a host to empty,
// confirm it with its projects, drive the evacuation, and fall back to
// SCALE_IN if the evacuation itself fails (as opposed to the confirm step
// failing, which fails the whole session).
func (Default) PrepareMaintenance(ctx context.Context, e *session.Engine) (session.State, error) {
	host, err := findHostToBeEmpty(ctx, e)
	if err != nil {
		return "", err
	}
	if host == "" {
		return session.StateMaintenanceFailed, nil
	}

	ok, err := confirmHostToBeEmptied(ctx, e, host, session.StatePrepareMaintenance)
	if err != nil {
		return "", err
	}
	if !ok {
		return session.StateMaintenanceFailed, nil
	}

	success, err := actionsToHaveEmptyHost(ctx, e, host)
	if err != nil {
		return "", err
	}
	if err := refreshInstances(ctx, e); err != nil {
		return "", err
	}
	if !success {
		return session.StateScaleIn, nil
	}
	return session.StateStartMaintenance, nil
}

// StartMaintenance implements START_MAINTENANCE: on its first pass it
// disables every in-scope compute service at once; on every pass it runs
// host maintenance (via the action-plugin framework) against every empty,
// not-yet-maintained host, then decides whether planned maintenance is
// still needed for the hosts that were never empty on their own.
func (Default) StartMaintenance(ctx context.Context, e *session.Engine) (session.State, error) {
	log := logger.Workflow().With().Str("session_id", e.SessionID).Logger()

	empties := e.Data.EmptyComputes()
	if len(empties) == 0 {
		log.Warn().Msg("START_MAINTENANCE reached with no empty compute host")
		return session.StateMaintenanceFailed, nil
	}

	if len(e.Data.MaintainedHostsByType(session.HostTypeCompute)) == 0 {
		for _, h := range e.Data.ComputeHosts() {
			if err := e.Compute.DisableService(ctx, h.Hostname, "fenix maintenance session "+e.SessionID); err != nil {
				return "", err
			}
			if err := e.Data.SetHostDisabled(ctx, h.Hostname, true); err != nil {
				return "", err
			}
		}
	}

	hostPlugins := e.Data.ActionPluginsByType(session.ActionPluginHost)
	for _, h := range empties {
		if h.Maintained {
			continue
		}
		if !waitHostEmpty(ctx, e, h.Hostname) {
			log.Warn().Str("host", h.Hostname).Msg("host did not reach zero vcpu usage")
			return session.StateMaintenanceFailed, nil
		}

		if err := e.Notify.AdminNotify(ctx, session.AdminNotification{SessionID: e.SessionID, Host: h.Hostname, State: "IN_MAINTENANCE"}); err != nil {
			return "", err
		}
		if err := e.Plugins.RunHostPlugins(ctx, e.SessionID, h.Hostname, hostPlugins); err != nil {
			return "", err
		}
		if err := e.Notify.AdminNotify(ctx, session.AdminNotification{SessionID: e.SessionID, Host: h.Hostname, State: "MAINTENANCE_COMPLETE"}); err != nil {
			return "", err
		}

		if err := e.Compute.EnableService(ctx, h.Hostname); err != nil {
			return "", err
		}
		if err := e.Data.SetHostDisabled(ctx, h.Hostname, false); err != nil {
			return "", err
		}
		if err := e.Data.MarkHostMaintained(ctx, h.Hostname); err != nil {
			return "", err
		}
	}

	remaining := len(e.Data.ComputeHosts()) - len(e.Data.MaintainedHostsByType(session.HostTypeCompute))
	if remaining > 0 {
		return session.StatePlannedMaintenance, nil
	}
	return session.StateMaintenanceComplete, nil
}

// PlannedMaintenance implements PLANNED_MAINTENANCE: one host at a time,
// for hosts that never emptied on their own, empty it the same way
// PREPARE_MAINTENANCE does, but fail the session outright if the
// evacuation doesn't succeed rather than falling back to SCALE_IN, since
// by this point there is no more spare compute capacity to juggle.
func (Default) PlannedMaintenance(ctx context.Context, e *session.Engine) (session.State, error) {
	hosts := e.Data.ComputeHosts()
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Hostname < hosts[j].Hostname })

	var host string
	for _, h := range hosts {
		if !h.Maintained {
			host = h.Hostname
			break
		}
	}
	if host == "" {
		return session.StateMaintenanceFailed, nil
	}

	ok, err := confirmHostToBeEmptied(ctx, e, host, session.StatePlannedMaintenance)
	if err != nil {
		return "", err
	}
	if !ok {
		return session.StateMaintenanceFailed, nil
	}

	success, err := actionsToHaveEmptyHost(ctx, e, host)
	if err != nil {
		return "", err
	}
	if err := refreshInstances(ctx, e); err != nil {
		return "", err
	}
	if !success {
		return session.StateMaintenanceFailed, nil
	}
	return session.StateStartMaintenance, nil
}

// MaintenanceComplete implements MAINTENANCE_COMPLETE: tell every project
// maintenance is over and they may scale back up, no reply required.
func (Default) MaintenanceComplete(ctx context.Context, e *session.Engine) (session.State, error) {
	if err := e.Data.SetProjectsState(ctx, session.StateMaintenanceComplete); err != nil {
		return "", err
	}

	now := time.Now()
	for _, pid := range e.Data.ProjectNames() {
		n := session.ProjectNotification{
			SessionID:   e.SessionID,
			ProjectID:   pid,
			InstanceIDs: e.Data.InstanceIDsByProject(pid),
			State:       string(session.StateMaintenanceComplete),
			ActionsAt:   now,
			ReplyAt:     now,
			Metadata:    e.Meta,
			ReplyURL:    e.ReplyURL(pid),
		}
		if err := e.Notify.ProjectNotify(ctx, n); err != nil {
			return "", err
		}
	}

	if err := refreshInstances(ctx, e); err != nil {
		return "", err
	}
	return session.StateMaintenanceDone, nil
}

// refreshInstances repopulates the session's projects and instances from
// the compute plane's current view of every in-scope compute host, and
// drops any cached instance that no longer exists.
func refreshInstances(ctx context.Context, e *session.Engine) error {
	servers, err := e.Compute.ListServers(ctx)
	if err != nil {
		return apperrors.ComputePlaneError(err)
	}

	inScope := make(map[string]bool)
	for _, h := range e.Data.ComputeHosts() {
		inScope[h.Hostname] = true
	}

	var projectIDs []string
	seen := make(map[string]bool)
	seenIDs := make(map[string]bool)
	for _, srv := range servers {
		if !inScope[srv.Host] {
			continue
		}
		seenIDs[srv.ID] = true
		if !seen[srv.ProjectID] {
			seen[srv.ProjectID] = true
			projectIDs = append(projectIDs, srv.ProjectID)
		}

		details := ""
		if srv.HasFloatingIP() {
			details = "floating_ip"
		}
		inst := session.Instance{
			SessionID:    e.SessionID,
			InstanceID:   srv.ID,
			InstanceName: srv.Name,
			ProjectID:    srv.ProjectID,
			Host:         srv.Host,
			State:        srv.VMState,
			Details:      details,
		}
		if err := e.Data.UpdateInstance(ctx, inst); err != nil {
			return err
		}
	}

	if err := e.Data.AddProjects(ctx, projectIDs); err != nil {
		return err
	}
	return e.Data.RemoveNonExistingInstances(ctx, seenIDs)
}
