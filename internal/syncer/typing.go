package syncer

import (
	"time"

	"github.com/fitpulse/fitchat/internal/wire"
)

// typingWindow is the per-peer debounce state for outbound typing
// signals.
type typingWindow struct {
	lastStart time.Time
	stopTimer *time.Timer
}

// NotifyLocalTyping reports local keystroke activity for peerID. A
// typing_start goes out at most once per window; a typing_stop fires
// automatically when the activity goes quiet. This keeps a fast typist
// from flooding the socket with one event per keystroke.
func (c *Controller) NotifyLocalTyping(peerID string) {
	now := time.Now()

	c.mu.Lock()
	w := c.typing[peerID]
	if w == nil {
		w = &typingWindow{}
		c.typing[peerID] = w
	}
	sendStart := now.Sub(w.lastStart) >= c.opts.TypingWindow
	if sendStart {
		w.lastStart = now
	}
	if w.stopTimer != nil {
		w.stopTimer.Stop()
	}
	w.stopTimer = time.AfterFunc(c.opts.TypingWindow, func() { c.autoStopTyping(peerID) })
	c.mu.Unlock()

	if sendStart {
		c.send(wire.TypingStart{PeerID: peerID})
	}
}

// StopTyping ends the typing window immediately, e.g. when the message
// is sent or the composer is cleared.
func (c *Controller) StopTyping(peerID string) {
	c.mu.Lock()
	w := c.typing[peerID]
	if w != nil {
		if w.stopTimer != nil {
			w.stopTimer.Stop()
		}
		delete(c.typing, peerID)
	}
	c.mu.Unlock()

	if w != nil {
		c.send(wire.TypingStop{PeerID: peerID})
	}
}

// autoStopTyping fires when the debounce window elapses with no further
// local activity.
func (c *Controller) autoStopTyping(peerID string) {
	c.mu.Lock()
	_, open := c.typing[peerID]
	delete(c.typing, peerID)
	c.mu.Unlock()

	if open {
		c.send(wire.TypingStop{PeerID: peerID})
	}
}

// resetLocalTyping drops all debounce windows without emitting stops;
// called on disconnect, when there is nothing to send them on.
func (c *Controller) resetLocalTyping() {
	c.mu.Lock()
	windows := c.typing
	c.typing = make(map[string]*typingWindow)
	c.mu.Unlock()

	for _, w := range windows {
		if w.stopTimer != nil {
			w.stopTimer.Stop()
		}
	}
}
