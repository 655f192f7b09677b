package session

import (
	"context"
	"sync"

	"github.com/openstack-archive/fenix/internal/logger"
)

// Data is the in-memory, store-backed view of one session: hosts, projects,
// instances, per-instance action choices, and the maintained set (C6).
// Adds and inserts write to the injected Store before updating the
// in-memory view; state and flag updates change the in-memory view and
// then write through. Per-instance action choices are held in memory
// only, and nothing reloads a Data view from the Store.
type Data struct {
	mu        sync.Mutex
	sessionID string
	store     Store

	hosts    map[string]*Host    // hostname -> host
	projects map[string]*Project // project_id -> project
	instances map[string]*Instance // instance_id -> instance
	nameIndex map[string]string  // instance_name -> instance_id

	projInstanceActions map[string]map[string]Action // project_id -> instance_id -> action
	actionPlugins       map[string]*ActionPlugin     // plugin name -> plugin
}

// NewData constructs an empty Data view for sessionID, backed by store.
func NewData(sessionID string, store Store) *Data {
	return &Data{
		sessionID:           sessionID,
		store:               store,
		hosts:               make(map[string]*Host),
		projects:            make(map[string]*Project),
		instances:           make(map[string]*Instance),
		nameIndex:           make(map[string]string),
		projInstanceActions: make(map[string]map[string]Action),
		actionPlugins:       make(map[string]*ActionPlugin),
	}
}

func clonePlugin(p *ActionPlugin) ActionPlugin { return *p }

// AddActionPlugins persists and caches the session's declared action
// plugins.
func (d *Data) AddActionPlugins(ctx context.Context, plugins []ActionPlugin) error {
	if len(plugins) == 0 {
		return nil
	}
	if err := d.store.CreateActionPlugins(ctx, d.sessionID, plugins); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range plugins {
		cp := p
		d.actionPlugins[p.Plugin] = &cp
	}
	return nil
}

// ActionPlugins returns every declared action plugin.
func (d *Data) ActionPlugins() []ActionPlugin {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ActionPlugin, 0, len(d.actionPlugins))
	for _, p := range d.actionPlugins {
		out = append(out, clonePlugin(p))
	}
	return out
}

// ActionPluginsByType returns the declared plugins of type t, e.g. the
// host-level plugins run during START_MAINTENANCE/PLANNED_MAINTENANCE.
func (d *Data) ActionPluginsByType(t ActionPluginType) []ActionPlugin {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ActionPlugin
	for _, p := range d.actionPlugins {
		if p.Type == t {
			out = append(out, clonePlugin(p))
		}
	}
	return out
}

// AddHosts persists and caches hostnames of the given type for this
// session.
func (d *Data) AddHosts(ctx context.Context, hostnames []string, t HostType) error {
	if len(hostnames) == 0 {
		return nil
	}
	if err := d.store.CreateHosts(ctx, d.sessionID, hostnames, t); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range hostnames {
		d.hosts[h] = &Host{SessionID: d.sessionID, Hostname: h, Type: t}
	}
	return nil
}

// AddProjects persists and caches the given project ids for this session.
func (d *Data) AddProjects(ctx context.Context, projectIDs []string) error {
	if len(projectIDs) == 0 {
		return nil
	}
	if err := d.store.CreateProjects(ctx, d.sessionID, projectIDs); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range projectIDs {
		if _, exists := d.projects[p]; !exists {
			d.projects[p] = &Project{SessionID: d.sessionID, ProjectID: p}
		}
	}
	return nil
}

func cloneHost(h *Host) Host { return *h }
func cloneProject(p *Project) Project { return *p }
func cloneInstance(i *Instance) Instance { return *i }

// Hosts returns every host of the session.
func (d *Data) Hosts() []Host {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Host, 0, len(d.hosts))
	for _, h := range d.hosts {
		out = append(out, cloneHost(h))
	}
	return out
}

// ComputeHosts returns every compute-type host.
func (d *Data) ComputeHosts() []Host {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Host
	for _, h := range d.hosts {
		if h.Type == HostTypeCompute {
			out = append(out, cloneHost(h))
		}
	}
	return out
}

// ControllerHosts returns every controller-type host.
func (d *Data) ControllerHosts() []Host {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Host
	for _, h := range d.hosts {
		if h.Type == HostTypeController {
			out = append(out, cloneHost(h))
		}
	}
	return out
}

// EmptyComputes returns compute hosts with no instance currently on them.
func (d *Data) EmptyComputes() []Host {
	d.mu.Lock()
	defer d.mu.Unlock()
	occupied := make(map[string]bool)
	for _, i := range d.instances {
		occupied[i.Host] = true
	}
	var out []Host
	for _, h := range d.hosts {
		if h.Type == HostTypeCompute && !occupied[h.Hostname] {
			out = append(out, cloneHost(h))
		}
	}
	return out
}

// MaintainedHostsByType returns hosts of type t already marked maintained.
func (d *Data) MaintainedHostsByType(t HostType) []Host {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Host
	for _, h := range d.hosts {
		if h.Type == t && h.Maintained {
			out = append(out, cloneHost(h))
		}
	}
	return out
}

// DisabledHosts returns hosts currently marked disabled.
func (d *Data) DisabledHosts() []Host {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Host
	for _, h := range d.hosts {
		if h.Disabled {
			out = append(out, cloneHost(h))
		}
	}
	return out
}

// Host returns the host by name.
func (d *Data) Host(hostname string) (Host, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, ok := d.hosts[hostname]
	if !ok {
		return Host{}, false
	}
	return cloneHost(h), true
}

// MarkHostMaintained sets maintained=true; once set it is never cleared
// within a session (invariant 6).
func (d *Data) MarkHostMaintained(ctx context.Context, hostname string) error {
	d.mu.Lock()
	h, ok := d.hosts[hostname]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	h.Maintained = true
	cp := cloneHost(h)
	d.mu.Unlock()
	return d.store.UpdateHost(ctx, cp)
}

// SetHostDisabled updates a host's disabled flag.
func (d *Data) SetHostDisabled(ctx context.Context, hostname string, disabled bool) error {
	d.mu.Lock()
	h, ok := d.hosts[hostname]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	h.Disabled = disabled
	cp := cloneHost(h)
	d.mu.Unlock()
	return d.store.UpdateHost(ctx, cp)
}

// Project returns the project by id.
func (d *Data) Project(projectID string) (Project, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.projects[projectID]
	if !ok {
		return Project{}, false
	}
	return cloneProject(p), true
}

// ProjectNames returns every known project id.
func (d *Data) ProjectNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.projects))
	for p := range d.projects {
		out = append(out, p)
	}
	return out
}

// ProjectsWithState returns projects whose state is non-empty.
func (d *Data) ProjectsWithState() []Project {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Project
	for _, p := range d.projects {
		if p.State != "" {
			out = append(out, cloneProject(p))
		}
	}
	return out
}

// ProjectHasStateInstances reports whether any instance of p currently
// carries a per-instance project_state.
func (d *Data) ProjectHasStateInstances(projectID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, i := range d.instances {
		if i.ProjectID == projectID && i.ProjectState != "" {
			return true
		}
	}
	return false
}

// InstancesByHostAndProject returns instances on host belonging to project.
func (d *Data) InstancesByHostAndProject(host, projectID string) []Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Instance
	for _, i := range d.instances {
		if i.Host == host && i.ProjectID == projectID {
			out = append(out, cloneInstance(i))
		}
	}
	return out
}

// InstancesByHost returns every instance currently on host.
func (d *Data) InstancesByHost(host string) []Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Instance
	for _, i := range d.instances {
		if i.Host == host {
			out = append(out, cloneInstance(i))
		}
	}
	return out
}

// InstanceIDsByProject returns every instance id belonging to project.
func (d *Data) InstanceIDsByProject(projectID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for id, i := range d.instances {
		if i.ProjectID == projectID {
			out = append(out, id)
		}
	}
	return out
}

// StateInstanceIDs returns the instances of project whose project_state
// equals the project's current state; if none match, every instance of
// the project is returned (§4.6).
func (d *Data) StateInstanceIDs(projectID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.projects[projectID]
	if !ok {
		return nil
	}
	var matched, all []string
	for id, i := range d.instances {
		if i.ProjectID != projectID {
			continue
		}
		all = append(all, id)
		if i.ProjectState != "" && i.ProjectState == p.State {
			matched = append(matched, id)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	return all
}

// Instance returns the instance by id.
func (d *Data) Instance(instanceID string) (Instance, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.instances[instanceID]
	if !ok {
		return Instance{}, false
	}
	return cloneInstance(i), true
}

// Instances returns every instance of the session.
func (d *Data) Instances() []Instance {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Instance, 0, len(d.instances))
	for _, i := range d.instances {
		out = append(out, cloneInstance(i))
	}
	return out
}

// SetProjectsState sets every known project's state to s and clears every
// instance's per-instance project_state.
func (d *Data) SetProjectsState(ctx context.Context, s State) error {
	d.mu.Lock()
	var toWrite []Project
	for _, p := range d.projects {
		p.State = string(s)
		toWrite = append(toWrite, cloneProject(p))
	}
	for _, i := range d.instances {
		i.ProjectState = ""
	}
	d.mu.Unlock()
	for _, p := range toWrite {
		if err := d.store.UpdateProject(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// SetProjectsStateAndHostsInstances sets state s on every project that has
// at least one instance on hosts, stamps those instances' project_state=s,
// and clears every other project's state and instance project_state to ""
// (§4.6), so a subsequent wait only blocks on the projects actually in
// scope for this host-targeted step.
func (d *Data) SetProjectsStateAndHostsInstances(ctx context.Context, s State, hosts []string) error {
	hostSet := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		hostSet[h] = true
	}

	d.mu.Lock()
	affected := make(map[string]bool)
	for _, i := range d.instances {
		if hostSet[i.Host] {
			i.ProjectState = string(s)
			affected[i.ProjectID] = true
		} else {
			i.ProjectState = ""
		}
	}
	var toWrite []Project
	for pid, p := range d.projects {
		if affected[pid] {
			p.State = string(s)
		} else {
			p.State = ""
		}
		toWrite = append(toWrite, cloneProject(p))
	}
	d.mu.Unlock()

	if len(affected) == 0 {
		logger.Workflow().Error().Str("state", string(s)).Msg("no project affected by host-scoped state change")
	}

	for _, p := range toWrite {
		if err := d.store.UpdateProject(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// SetProjectState sets a single project's state field, as applied by the
// Project Reply Gateway.
func (d *Data) SetProjectState(ctx context.Context, projectID, state string) error {
	d.mu.Lock()
	p, ok := d.projects[projectID]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	p.State = state
	cp := cloneProject(p)
	d.mu.Unlock()
	return d.store.UpdateProject(ctx, cp)
}

// SetProjectInstanceActions records the project's chosen action per
// instance, as delivered by the Project Reply Gateway.
func (d *Data) SetProjectInstanceActions(projectID string, actions map[string]Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make(map[string]Action, len(actions))
	for k, v := range actions {
		cp[k] = v
	}
	d.projInstanceActions[projectID] = cp
}

// ProjectInstanceAction returns the action the project chose for instance,
// or ActionNone if it never replied with one.
func (d *Data) ProjectInstanceAction(projectID, instanceID string) Action {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.projInstanceActions[projectID]
	if !ok {
		return ActionNone
	}
	return m[instanceID]
}

// MarkInstanceActionDone flags that the instance's chosen action has
// completed.
func (d *Data) MarkInstanceActionDone(ctx context.Context, instanceID string) error {
	d.mu.Lock()
	i, ok := d.instances[instanceID]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	i.ActionDone = true
	cp := cloneInstance(i)
	d.mu.Unlock()
	return d.store.UpsertInstance(ctx, cp)
}

// SetInstanceHost updates the host an instance runs on, following a
// successful migration.
func (d *Data) SetInstanceHost(ctx context.Context, instanceID, host string) error {
	d.mu.Lock()
	i, ok := d.instances[instanceID]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	i.Host = host
	cp := cloneInstance(i)
	d.mu.Unlock()
	return d.store.UpsertInstance(ctx, cp)
}

// UpdateInstance reconciles a freshly observed instance against the
// current view (§4.6):
//   - instance_id already known: no-op, fields are already mirrored.
//   - instance_name already known under a different id: treat as
//     re-instantiation, delete the old row and insert a new one that
//     preserves the prior action/project_state/action_done (resolves open
//     question (a): re-instantiation preserves in-flight negotiation state
//     rather than restarting it, since the project had already committed to
//     an action for the workload that instance represents).
//   - otherwise: insert fresh.
func (d *Data) UpdateInstance(ctx context.Context, observed Instance) error {
	d.mu.Lock()
	if _, exists := d.instances[observed.InstanceID]; exists {
		d.mu.Unlock()
		return nil
	}

	if oldID, exists := d.nameIndex[observed.InstanceName]; exists {
		old := d.instances[oldID]
		observed.Action = old.Action
		observed.ProjectState = old.ProjectState
		observed.ActionDone = old.ActionDone
		delete(d.instances, oldID)
		delete(d.nameIndex, observed.InstanceName)
		d.mu.Unlock()

		if err := d.store.DeleteInstance(ctx, d.sessionID, oldID); err != nil {
			return err
		}
	} else {
		d.mu.Unlock()
	}

	if err := d.store.UpsertInstance(ctx, observed); err != nil {
		return err
	}

	d.mu.Lock()
	cp := observed
	d.instances[observed.InstanceID] = &cp
	d.nameIndex[observed.InstanceName] = observed.InstanceID
	d.mu.Unlock()
	return nil
}

// RemoveNonExistingInstances deletes every cached instance whose id is not
// in seenIDs, e.g. after a tenant scales down.
func (d *Data) RemoveNonExistingInstances(ctx context.Context, seenIDs map[string]bool) error {
	d.mu.Lock()
	var toDelete []string
	for id := range d.instances {
		if !seenIDs[id] {
			toDelete = append(toDelete, id)
		}
	}
	d.mu.Unlock()

	for _, id := range toDelete {
		if err := d.store.DeleteInstance(ctx, d.sessionID, id); err != nil {
			return err
		}
		d.mu.Lock()
		if i, ok := d.instances[id]; ok {
			delete(d.nameIndex, i.InstanceName)
		}
		delete(d.instances, id)
		d.mu.Unlock()
	}
	return nil
}
