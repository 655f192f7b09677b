package workflows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstack-archive/fenix/internal/session"
)

func TestGet_EmptyNameResolvesToDefault(t *testing.T) {
	f, err := Get("")
	require.NoError(t, err)
	assert.IsType(t, &Default{}, f())
}

func TestGet_UnknownNameIsRejected(t *testing.T) {
	_, err := Get("does-not-exist")
	assert.Error(t, err)
}

func TestRegister_NewFactoryIsResolvable(t *testing.T) {
	Register("test-only", func() session.Workflow { return &Default{} })
	f, err := Get("test-only")
	require.NoError(t, err)
	assert.NotNil(t, f())

	names := Names()
	assert.Contains(t, names, "default")
	assert.Contains(t, names, "test-only")
}
