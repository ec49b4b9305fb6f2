//go:build !windows

package lifecycle

import (
	"os"
	"syscall"
)

var watchedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2}

func classifySignal(sig os.Signal) (signalAction, Event) {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return signalEvent, HostShuttingDown
	case syscall.SIGHUP:
		return signalEvent, CodeReloadCompleted
	case syscall.SIGUSR1:
		return signalEvent, ManualReconnect
	case syscall.SIGUSR2:
		return signalToggleRestricted, 0
	}
	return signalIgnore, 0
}
