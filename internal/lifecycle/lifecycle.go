// Package lifecycle holds the process phase shared by the CLI loop and the
// status server.
package lifecycle

import "sync/atomic"

type Phase int32

const (
	// Starting lasts until the first weather reading (real, offline or simulated) is shown.
	Starting Phase = iota
	Running
	// ShuttingDown is set on SIGINT/SIGTERM or 'q'. /health answers 503 and
	// POST /refresh is refused while set.
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase stores p. Once shutting down, the phase never moves back.
func SetPhase(p Phase) {
	for {
		cur := phase.Load()
		if Phase(cur) == ShuttingDown && p != ShuttingDown {
			return
		}
		if phase.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

func CurrentPhase() Phase {
	return Phase(phase.Load())
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return CurrentPhase() == ShuttingDown
}

// Reset returns to Starting. For tests only.
func Reset() {
	phase.Store(int32(Starting))
}
