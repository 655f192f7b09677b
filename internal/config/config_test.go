package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FENIX_ADMIN_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "localhost", cfg.DB.Host)
	assert.Equal(t, "disable", cfg.DB.SSLMode)
	assert.Equal(t, 10*time.Minute, cfg.Workflow.ProjectMaintenanceReply)
	assert.True(t, cfg.RateLimitEnabled)
}

func TestLoad_RequiresAdminAPIKey(t *testing.T) {
	t.Setenv("FENIX_ADMIN_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("FENIX_ADMIN_API_KEY", "test-key")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("PROJECT_MAINTENANCE_REPLY", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 5*time.Minute, cfg.Workflow.ProjectMaintenanceReply)
}
