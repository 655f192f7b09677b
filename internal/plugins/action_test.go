package plugins

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstack-archive/fenix/internal/session"
)

type recordingStore struct {
	session.Store
	records []session.ActionPluginInstance
}

func (s *recordingStore) UpsertActionPluginInstance(ctx context.Context, i session.ActionPluginInstance) error {
	s.records = append(s.records, i)
	return nil
}

type failingPlugin struct{}

func (failingPlugin) Run(ctx context.Context, sessionID, hostname string) error {
	return assert.AnError
}

func TestGet_UnknownPluginIsRejected(t *testing.T) {
	_, err := Get("does-not-exist")
	assert.Error(t, err)
}

func TestGet_DummyIsRegistered(t *testing.T) {
	f, err := Get("dummy")
	require.NoError(t, err)
	assert.IsType(t, &Dummy{}, f())
}

func TestRunner_RunHostPlugins_SkipsNonHostTypePlugins(t *testing.T) {
	store := &recordingStore{}
	r := &Runner{Store: store}

	err := r.RunHostPlugins(context.Background(), "sess-1", "compute-1", []session.ActionPlugin{
		{Plugin: "dummy", Type: session.ActionPluginPre},
	})
	require.NoError(t, err)
	assert.Empty(t, store.records)
}

func TestRunner_RunHostPlugins_RecordsRunningThenDone(t *testing.T) {
	store := &recordingStore{}
	Register("test-success", func() ActionPlugin { return noopPlugin{} })
	r := &Runner{Store: store}

	err := r.RunHostPlugins(context.Background(), "sess-1", "compute-1", []session.ActionPlugin{
		{Plugin: "test-success", Type: session.ActionPluginHost},
	})
	require.NoError(t, err)
	require.Len(t, store.records, 2)
	assert.Equal(t, "RUNNING", store.records[0].State)
	assert.Equal(t, "DONE", store.records[1].State)
}

func TestRunner_RunHostPlugins_RecordsFailedOnPluginError(t *testing.T) {
	store := &recordingStore{}
	Register("test-fail", func() ActionPlugin { return failingPlugin{} })
	r := &Runner{Store: store}

	err := r.RunHostPlugins(context.Background(), "sess-1", "compute-1", []session.ActionPlugin{
		{Plugin: "test-fail", Type: session.ActionPluginHost},
	})
	require.NoError(t, err)
	require.Len(t, store.records, 2)
	assert.Equal(t, "FAILED", store.records[1].State)
}

func TestRunner_RunHostPlugins_UnregisteredPluginRecordsFailed(t *testing.T) {
	store := &recordingStore{}
	r := &Runner{Store: store}

	err := r.RunHostPlugins(context.Background(), "sess-1", "compute-1", []session.ActionPlugin{
		{Plugin: "never-registered", Type: session.ActionPluginHost},
	})
	require.NoError(t, err)
	require.Len(t, store.records, 1)
	assert.Equal(t, "FAILED", store.records[0].State)
}

type noopPlugin struct{}

func (noopPlugin) Run(ctx context.Context, sessionID, hostname string) error { return nil }
