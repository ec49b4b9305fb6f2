//go:build windows

package lifecycle

import (
	"os"
	"syscall"
)

var watchedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

func classifySignal(sig os.Signal) (signalAction, Event) {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return signalEvent, HostShuttingDown
	}
	return signalIgnore, 0
}
