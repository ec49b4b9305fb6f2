package lifecycle

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/gaspardpetit/editorbridge/internal/logx"
)

// DefaultHostPollInterval is how often WatchHost checks the host process.
const DefaultHostPollInterval = 2 * time.Second

// pidExists is replaced in tests.
var pidExists = process.PidExistsWithContext

// WatchHost raises HostShuttingDown once process pid is gone. It returns when
// that happens or ctx ends.
func WatchHost(ctx context.Context, pid int32, interval time.Duration, c *Coordinator) {
	if pid <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultHostPollInterval
	}
	log := logx.Log.With().Int32("pid", pid).Logger()
	log.Info().Msg("watching host process")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			alive, err := pidExists(ctx, pid)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Debug().Err(err).Msg("host process check failed")
				continue
			}
			if !alive {
				log.Warn().Msg("host process exited")
				_ = c.Handle(ctx, HostShuttingDown)
				return
			}
		}
	}
}
