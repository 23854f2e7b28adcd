//go:build !windows

package main

import (
	"os"
	"os/signal"
	"syscall"
)

// refreshSignals delivers SIGUSR1, which triggers a manual refresh.
func refreshSignals() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	return ch, func() { signal.Stop(ch) }
}
