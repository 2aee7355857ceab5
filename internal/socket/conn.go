// Package socket owns the persistent bidirectional connection to the
// messaging endpoint. It dials, authenticates, pumps frames, and reports
// every lifecycle transition through the state machine and the bus. It
// never retries on its own; reconnect policy belongs to the caller.
package socket

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fitpulse/fitchat/internal/bus"
	"github.com/fitpulse/fitchat/internal/status"
	"github.com/fitpulse/fitchat/internal/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the deadline for a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long the peer has to answer a ping.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// outboundBuffer caps queued fire-and-forget sends.
	outboundBuffer = 64
)

// Identity supplies the authenticated identity used to authorize the
// connection.
type Identity interface {
	Token() string
	UserID() string
}

// Conn is the process-wide transport connection.
type Conn struct {
	url      string
	identity Identity
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger
	dialer   *websocket.Dialer

	mu   sync.Mutex
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
}

// New creates a transport connection for the given endpoint URL.
func New(url string, identity Identity, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		url:      url,
		identity: identity,
		machine:  machine,
		bus:      b,
		logger:   logger,
		dialer:   websocket.DefaultDialer,
	}
}

// Connect dials and authenticates. Idempotent: a no-op when already
// Connected or a dial is in flight. Failure transitions back to
// Disconnected and is reported both as the returned error and on the bus.
func (c *Conn) Connect(ctx context.Context) error {
	token := c.identity.Token()
	if token == "" {
		err := &TransportError{Op: "connect", Err: fmt.Errorf("no session token")}
		c.publishError(err)
		return err
	}

	if err := c.machine.Transition(status.Connecting); err != nil {
		// Already Connecting or Connected.
		return nil
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("X-Client-Session", uuid.NewString())

	c.logger.Info("connecting", zap.String("url", c.url))
	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		terr := &TransportError{Op: "connect", Err: err}
		_ = c.machine.Transition(status.Disconnected)
		c.publishError(terr)
		c.logger.Error("connect failed", zap.Error(err))
		return terr
	}

	c.mu.Lock()
	c.ws = ws
	c.out = make(chan []byte, outboundBuffer)
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := c.machine.Transition(status.Connected); err != nil {
		// Disconnect raced the dial; drop the fresh socket.
		_ = ws.Close()
		return nil
	}
	c.logger.Info("connected")

	go c.readPump(ws)
	go c.writePump(ws)
	return nil
}

// Disconnect tears the connection down. Idempotent.
func (c *Conn) Disconnect() {
	c.teardown(nil)
}

// IsConnected is a pure query on the connection state.
func (c *Conn) IsConnected() bool {
	return c.machine.IsConnected()
}

// Send encodes and queues a command. Fire-and-forget: it never waits for
// a server acknowledgment. Returns ErrNotConnected when the transport is
// not Connected.
func (c *Conn) Send(cmd wire.Command) error {
	if !c.machine.IsConnected() {
		return ErrNotConnected
	}
	raw, err := wire.Encode(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	out, done := c.out, c.done
	c.mu.Unlock()
	if out == nil {
		return ErrNotConnected
	}

	select {
	case out <- raw:
		return nil
	case <-done:
		return ErrNotConnected
	default:
		return &TransportError{Op: "send", Err: fmt.Errorf("outbound buffer full")}
	}
}

func (c *Conn) readPump(ws *websocket.Conn) {
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			c.teardown(&TransportError{Op: "read", Err: err})
			return
		}
		c.dispatch(raw)
	}
}

func (c *Conn) writePump(ws *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	c.mu.Lock()
	out, done := c.out, c.done
	c.mu.Unlock()

	for {
		select {
		case raw := <-out:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				c.teardown(&TransportError{Op: "write", Err: err})
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.teardown(&TransportError{Op: "ping", Err: err})
				return
			}
		case <-done:
			return
		}
	}
}

// teardown closes the socket once and transitions to Disconnected. err is
// nil for a local Disconnect and non-nil for transport failures.
func (c *Conn) teardown(terr *TransportError) {
	c.mu.Lock()
	ws := c.ws
	done := c.done
	c.ws = nil
	c.out = nil
	c.done = nil
	c.mu.Unlock()

	if ws == nil {
		return
	}
	close(done)
	_ = ws.Close()

	if err := c.machine.Transition(status.Disconnected); err == nil {
		if terr != nil {
			c.logger.Warn("connection lost", zap.Error(terr))
			c.publishError(terr)
		} else {
			c.logger.Info("disconnected")
		}
	}
}

func (c *Conn) publishError(terr *TransportError) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{
		Kind:      "conn.error",
		Timestamp: time.Now(),
		Payload:   terr,
	})
}
