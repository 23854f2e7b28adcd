package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Veirt/weathr/internal/lifecycle"
	"github.com/Veirt/weathr/internal/session"
)

// frameInterval is how often the loop consumes refresh results.
const frameInterval = 100 * time.Millisecond

// hudLoop is the headless renderer: one Tick per frame, and a HUD line printed
// whenever it differs from the previous one.
type hudLoop struct {
	sess     *session.Session
	out      io.Writer
	frame    time.Duration
	commands <-chan string
	refresh  <-chan os.Signal
	logger   *zap.Logger

	last string
}

// run returns on 'q', when ctx ends, or never if neither happens.
func (l *hudLoop) run(ctx context.Context) {
	if l.frame <= 0 {
		l.frame = frameInterval
	}
	ticker := time.NewTicker(l.frame)
	defer ticker.Stop()

	l.render()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-l.commands:
			if !ok {
				l.commands = nil
				continue
			}
			switch strings.ToLower(strings.TrimSpace(cmd)) {
			case "q":
				l.logger.Info("Quit requested")
				return
			case "r":
				l.manualRefresh("stdin")
			}
		case <-l.refresh:
			l.manualRefresh("signal")
		case <-ticker.C:
			l.sess.Tick()
		}
		l.render()
	}
}

func (l *hudLoop) manualRefresh(source string) {
	if l.sess.Refresh() {
		l.logger.Info("Manual refresh requested", zap.String("source", source))
	}
}

func (l *hudLoop) render() {
	snap := l.sess.Snapshot()
	if snap.Weather != nil {
		lifecycle.SetPhase(lifecycle.Running)
	}
	line := session.HUD(snap)
	if line == l.last {
		return
	}
	l.last = line
	fmt.Fprintln(l.out, line)
}

// readCommands forwards stdin lines until EOF. The goroutine is abandoned at
// exit since a blocked read cannot be interrupted.
func readCommands(in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}
