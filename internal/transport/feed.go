// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	applog "playhead/internal/log"
	"playhead/pkg/playhead"
)

const defaultFeedInterval = 16 * time.Millisecond

var feedLog = applog.New("Feed")

// Feed polls a play head off the audio thread and publishes a
// PositionMessage whenever the reading changes. An unchanged reading is
// resent once keepAlive has passed, so late subscribers and lossy
// transports still converge. A keepAlive of zero disables resending.
type Feed struct {
	ph        playhead.PlayHead
	out       Transport
	interval  time.Duration
	keepAlive time.Duration
	session   uuid.UUID
	now       func() time.Time

	pollMu   sync.Mutex
	sequence uint32
	last     playhead.PositionInfo
	lastOK   bool
	lastSent time.Time

	mu       sync.Mutex
	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFeed creates a stopped feed. An interval <= 0 defaults to 16ms.
func NewFeed(ph playhead.PlayHead, out Transport, interval, keepAlive time.Duration) (*Feed, error) {
	if ph == nil {
		return nil, errors.New("feed: play head cannot be nil")
	}
	if out == nil {
		return nil, errors.New("feed: transport cannot be nil")
	}
	if interval <= 0 {
		interval = defaultFeedInterval
		feedLog.Warnf("Invalid interval provided, defaulting to %s", interval)
	}

	f := &Feed{
		ph:        ph,
		out:       out,
		interval:  interval,
		keepAlive: keepAlive,
		session:   uuid.New(),
		now:       time.Now,
	}
	feedLog.Infof("Initialized (Session: %s, Interval: %s, KeepAlive: %s)", f.session, interval, keepAlive)
	return f, nil
}

// Session identifies this feed in every message it sends.
func (f *Feed) Session() uuid.UUID {
	return f.session
}

// Sent returns the number of messages published so far.
func (f *Feed) Sent() uint32 {
	f.pollMu.Lock()
	defer f.pollMu.Unlock()
	return f.sequence
}

// Poll reads the play head once and publishes if needed. It reports
// whether a message was sent.
func (f *Feed) Poll() bool {
	pos, ok := playhead.Query(f.ph)
	if !ok {
		pos = playhead.PositionInfo{}
	}

	f.pollMu.Lock()
	defer f.pollMu.Unlock()

	now := f.now()
	changed := f.sequence == 0 || ok != f.lastOK || !pos.Equal(f.last)
	stale := f.keepAlive > 0 && now.Sub(f.lastSent) >= f.keepAlive
	if !changed && !stale {
		return false
	}

	msg := PositionMessage{
		Session:   f.session,
		Sequence:  f.sequence + 1,
		Timestamp: now.UnixNano(),
		Available: ok,
		Position:  pos,
	}
	if err := f.out.Send(msg); err != nil {
		feedLog.Debugf("Send failed for sequence %d: %v", msg.Sequence, err)
		return false
	}

	f.sequence = msg.Sequence
	f.last = pos
	f.lastOK = ok
	f.lastSent = now
	return true
}

// Start launches the polling goroutine. Calling Start on a running feed is
// a no-op.
func (f *Feed) Start() {
	f.mu.Lock()
	if f.ticker != nil {
		f.mu.Unlock()
		feedLog.Warnf("Start called but already running.")
		return
	}
	f.ticker = time.NewTicker(f.interval)
	f.doneChan = make(chan struct{})
	f.stopOnce = sync.Once{}
	ticker := f.ticker
	doneChan := f.doneChan
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		feedLog.Debugf("Goroutine started")
		f.Poll()
		for {
			select {
			case <-ticker.C:
				f.Poll()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the polling goroutine and waits for it. Safe to call more than once.
func (f *Feed) Stop() error {
	f.mu.Lock()
	if f.ticker == nil {
		f.mu.Unlock()
		return nil
	}
	f.stopOnce.Do(func() {
		close(f.doneChan)
		f.ticker.Stop()
		f.ticker = nil
	})
	f.mu.Unlock()

	f.wg.Wait()
	feedLog.Infof("Stopped after %d messages", f.Sent())
	return nil
}

// Close stops the feed. The transport is left open.
func (f *Feed) Close() error {
	return f.Stop()
}
