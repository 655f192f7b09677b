package plugins

import (
	"context"
	"os/exec"

	"github.com/openstack-archive/fenix/internal/logger"
)

func init() {
	Register("dummy", func() ActionPlugin { return &Dummy{} })
}

// Dummy is a reference action plugin: it runs a harmless shell command
// against the host and reports success, standing in for a real host
// maintenance step (firmware update, hardware check, ...) during
// development and testing.
type Dummy struct{}

// Run executes "echo" and logs its output.
func (Dummy) Run(ctx context.Context, sessionID, hostname string) error {
	log := logger.Workflow().With().Str("session_id", sessionID).Str("host", hostname).Logger()
	log.Info().Msg("dummy action plugin running")

	out, err := exec.CommandContext(ctx, "echo", "dummy running in", hostname).CombinedOutput()
	if err != nil {
		log.Error().Err(err).Msg("dummy action plugin command failed")
		return err
	}
	log.Debug().Str("output", string(out)).Msg("dummy action plugin output")
	return nil
}
