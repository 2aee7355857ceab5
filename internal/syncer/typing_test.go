package syncer

import (
	"testing"
	"time"
)

func TestTypingDebounceSingleStartPerWindow(t *testing.T) {
	f := newFixture(t, nil)

	// A burst of keystrokes well inside one window.
	for i := 0; i < 10; i++ {
		f.ctrl.NotifyLocalTyping("u2")
		time.Sleep(2 * time.Millisecond)
	}

	if got := f.transport.count("typing_start"); got != 1 {
		t.Errorf("typing_start sent %d times, want 1", got)
	}

	// The stop fires on its own once activity goes quiet.
	waitFor(t, "automatic typing_stop", func() bool {
		return f.transport.count("typing_stop") == 1
	})
}

func TestTypingNewWindowAfterIdle(t *testing.T) {
	f := newFixture(t, nil)

	f.ctrl.NotifyLocalTyping("u2")
	waitFor(t, "first window to close", func() bool {
		return f.transport.count("typing_stop") == 1
	})

	f.ctrl.NotifyLocalTyping("u2")
	if got := f.transport.count("typing_start"); got != 2 {
		t.Errorf("typing_start sent %d times, want 2 (new window)", got)
	}
}

func TestStopTypingImmediate(t *testing.T) {
	f := newFixture(t, nil)

	f.ctrl.NotifyLocalTyping("u2")
	f.ctrl.StopTyping("u2")

	if got := f.transport.count("typing_stop"); got != 1 {
		t.Fatalf("typing_stop sent %d times, want 1", got)
	}

	// The cancelled auto-stop must not fire a second one.
	time.Sleep(100 * time.Millisecond)
	if got := f.transport.count("typing_stop"); got != 1 {
		t.Errorf("typing_stop sent %d times after idle, want still 1", got)
	}
}

func TestStopTypingWithoutWindowIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	f.ctrl.StopTyping("u2")

	if got := f.transport.count("typing_stop"); got != 0 {
		t.Errorf("typing_stop sent %d times, want 0", got)
	}
}

func TestTypingWindowsArePerPeer(t *testing.T) {
	f := newFixture(t, nil)

	f.ctrl.NotifyLocalTyping("u2")
	f.ctrl.NotifyLocalTyping("u3")

	if got := f.transport.count("typing_start"); got != 2 {
		t.Errorf("typing_start sent %d times, want 2 (independent peers)", got)
	}
}
