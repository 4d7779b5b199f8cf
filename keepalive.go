package telemetry

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// pingProbe is the outbound keepalive frame.
type pingProbe struct {
	Type      string `json:"type"`
	PingID    int    `json:"pingId"`
	Timestamp int64  `json:"timestamp"`
}

// keepalive drives the probe schedule for the connection: one probe
// immediately on start, then one per interval, each carrying a monotonically
// increasing sequence number. The sequence survives restarts; the schedule
// does not run while stopped (paused or disconnected).
type keepalive struct {
	clk      clock.Clock
	interval time.Duration

	mu     sync.Mutex
	seq    int
	cancel chan struct{}
}

func newKeepalive(clk clock.Clock, interval time.Duration) *keepalive {
	return &keepalive{clk: clk, interval: interval}
}

// start begins the probe schedule, replacing any previous run. probe is
// invoked with the sequence number and send timestamp; it must not block for
// long and must not panic outward.
func (k *keepalive) start(probe func(pingID int, sentAt int64)) {
	k.mu.Lock()
	if k.cancel != nil {
		close(k.cancel)
	}
	cancel := make(chan struct{})
	k.cancel = cancel
	k.mu.Unlock()

	go func() {
		k.fire(probe)
		ticker := k.clk.Ticker(k.interval)
		defer ticker.Stop()
		for {
			select {
			case <-cancel:
				return
			case <-ticker.C:
				k.fire(probe)
			}
		}
	}()
}

// stop halts the schedule. Idempotent.
func (k *keepalive) stop() {
	k.mu.Lock()
	if k.cancel != nil {
		close(k.cancel)
		k.cancel = nil
	}
	k.mu.Unlock()
}

func (k *keepalive) fire(probe func(int, int64)) {
	k.mu.Lock()
	k.seq++
	n := k.seq
	k.mu.Unlock()
	probe(n, k.clk.Now().UnixMilli())
}
