package lifecycle

import (
	"context"
	"os"
	"os/signal"

	"github.com/gaspardpetit/editorbridge/internal/logx"
)

// signalAction is what a received OS signal asks for.
type signalAction int

const (
	signalIgnore signalAction = iota
	signalEvent
	signalToggleRestricted
)

// WatchSignals maps OS signals onto lifecycle events until ctx ends. Returns
// after a shutdown signal has been handled.
func WatchSignals(ctx context.Context, c *Coordinator) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, watchedSignals...)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			action, ev := classifySignal(sig)
			logx.Log.Debug().Str("signal", sig.String()).Msg("signal received")
			var err error
			switch action {
			case signalEvent:
				err = c.Handle(ctx, ev)
			case signalToggleRestricted:
				err = c.ToggleRestricted(ctx)
			default:
				continue
			}
			if err != nil {
				logx.Log.Warn().Err(err).Str("signal", sig.String()).Msg("lifecycle event failed")
			}
			if action == signalEvent && ev == HostShuttingDown {
				return
			}
		}
	}
}
