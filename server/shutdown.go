package server

import (
	"fmt"
	"sync"
	"time"

	"parlor/logsink"
	"parlor/session"
)

// shutdownController drives shutdown choreography: a scheduled
// shutdown announces itself, warns again shortly before taking
// effect, then closes every session and stops the listener. A
// requested shutdown always terminates the process rather than
// restarting it in place, since the server runs as a single
// goroutine-per-connection binary under a supervisor rather than a
// restartable single-threaded event loop.
type shutdownController struct {
	reg  *session.Registry
	logs *logsink.Sink
	stop func()

	mu     sync.Mutex
	timer  *time.Timer
	active bool
}

func newShutdownController(reg *session.Registry, logs *logsink.Sink, stop func()) *shutdownController {
	c := &shutdownController{reg: reg, logs: logs, stop: stop}
	reg.ShutdownRequest = c.request
	return c
}

// request implements session.Registry.ShutdownRequest: seconds<=0 with
// immediate=true shuts down right away ("!down !" or an incumbent
// hand-off SHUTDOWN byte); cancel=true cancels a pending shutdown;
// otherwise a shutdown is scheduled seconds from now.
func (c *shutdownController) request(seconds int, immediate, cancel bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cancel {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		if c.active {
			c.active = false
			c.logs.Shutdown("Shutdown cancelled.")
			c.reg.Announce("Shutdown cancelled.")
		}
		return
	}

	if immediate || seconds <= 0 {
		c.active = false
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.logs.Shutdown("Shutting down now.")
		c.reg.Announce("*** The server is shutting down now. ***")
		c.closeAll()
		c.stop()
		return
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.active = true
	c.logs.Shutdown("Shutdown requested in %d seconds.", seconds)
	c.reg.Announce(fmt.Sprintf("*** The server will shut down in %d seconds. ***", seconds))

	warnAt := seconds - 5
	if warnAt < 0 {
		warnAt = 0
	}
	c.timer = time.AfterFunc(time.Duration(warnAt)*time.Second, func() {
		c.finalWarning(5)
	})
}

// finalWarning announces the last-chance warning, then closes every
// connection after the remaining grace period.
func (c *shutdownController) finalWarning(remaining int) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.logs.Shutdown("Final warning: shutting down in %d seconds.", remaining)
	c.reg.Announce(fmt.Sprintf("*** FINAL WARNING: shutting down in %d seconds. ***", remaining))
	c.mu.Unlock()

	time.AfterFunc(time.Duration(remaining)*time.Second, func() {
		c.mu.Lock()
		if !c.active {
			c.mu.Unlock()
			return
		}
		c.active = false
		c.mu.Unlock()

		c.logs.Shutdown("Shutting down.")
		c.reg.Announce("*** The server is shutting down. ***")
		c.closeAll()
		c.stop()
	})
}

// closeAll calls Session.Close on every registered session, which
// closes each attached connection at once; there is no separate drain
// step.
func (c *shutdownController) closeAll() {
	for _, s := range c.reg.All() {
		s.Close()
	}
}
