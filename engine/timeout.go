package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// timeoutChannelSize is the buffer size for the timeout delivery channel.
const timeoutChannelSize = 100

// TimeoutInfo represents a finality timeout for one height.
type TimeoutInfo struct {
	Height   uint64
	Duration time.Duration
}

// TimeoutTicker manages finality timeouts. Unlike a single-round consensus
// clock it carries one timer per height, because multiple heights may be
// collecting votes concurrently. Expired timeouts are delivered on Chan and
// applied by the engine's timeout routine.
type TimeoutTicker struct {
	mu      sync.Mutex
	timers  map[uint64]*time.Timer
	tockCh  chan TimeoutInfo
	stopCh  chan struct{}
	running bool

	droppedTimeouts atomic.Uint64
}

// NewTimeoutTicker creates a new TimeoutTicker.
func NewTimeoutTicker() *TimeoutTicker {
	return &TimeoutTicker{
		timers: make(map[uint64]*time.Timer),
		tockCh: make(chan TimeoutInfo, timeoutChannelSize),
		stopCh: make(chan struct{}),
	}
}

// Start enables timeout scheduling.
func (tt *TimeoutTicker) Start() {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.running = true
}

// Stop cancels all pending timers. No timeouts are delivered after Stop.
func (tt *TimeoutTicker) Stop() {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if !tt.running {
		return
	}
	tt.running = false
	close(tt.stopCh)
	for h, timer := range tt.timers {
		timer.Stop()
		delete(tt.timers, h)
	}
}

// Chan returns the channel that delivers expired timeouts.
func (tt *TimeoutTicker) Chan() <-chan TimeoutInfo {
	return tt.tockCh
}

// ScheduleTimeout arms (or re-arms) the timer for a height.
func (tt *TimeoutTicker) ScheduleTimeout(ti TimeoutInfo) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if !tt.running {
		return
	}
	if prev, ok := tt.timers[ti.Height]; ok {
		prev.Stop()
	}
	tt.timers[ti.Height] = time.AfterFunc(ti.Duration, func() {
		tt.mu.Lock()
		delete(tt.timers, ti.Height)
		tt.mu.Unlock()

		select {
		case tt.tockCh <- ti:
		case <-tt.stopCh:
			// Ticker stopped, don't deliver.
		default:
			// Channel full; the height stays Collecting until the
			// engine catches up or it is abandoned explicitly.
			tt.droppedTimeouts.Add(1)
		}
	})
}

// Cancel disarms the timer for a height, if any.
func (tt *TimeoutTicker) Cancel(height uint64) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	if timer, ok := tt.timers[height]; ok {
		timer.Stop()
		delete(tt.timers, height)
	}
}

// DroppedTimeouts returns the number of timeouts dropped due to a full
// delivery channel.
func (tt *TimeoutTicker) DroppedTimeouts() uint64 {
	return tt.droppedTimeouts.Load()
}
