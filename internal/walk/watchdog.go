package walk

import (
	"sync"
	"time"
)

// fixTimeout mirrors the location provider's acquisition timeout: if no
// fix lands within this window the session is flagged degraded.
const fixTimeout = 7 * time.Second

// maxFixAge enforces the "no cached fix" rule. Fixes stamped further in
// the past than this are treated as stale and never enter the pipeline.
const maxFixAge = fixTimeout

type watchdog struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newWatchdog(onTimeout func()) *watchdog {
	w := &watchdog{}
	w.timer = time.AfterFunc(fixTimeout, func() {
		w.mu.Lock()
		dead := w.stopped
		w.mu.Unlock()
		if !dead {
			onTimeout()
		}
	})
	return w
}

// Kick rearms the timeout after a fix arrived.
func (w *watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.timer.Reset(fixTimeout)
}

func (w *watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	w.timer.Stop()
}
