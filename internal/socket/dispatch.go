package socket

import (
	"errors"
	"time"

	"github.com/fitpulse/fitchat/internal/bus"
	"github.com/fitpulse/fitchat/internal/wire"
	"go.uber.org/zap"
)

// dispatch decodes one inbound frame and publishes the typed event under
// the "server." namespace. A malformed frame is logged and dropped; it
// must never tear down the connection or block later frames.
func (c *Conn) dispatch(raw []byte) {
	evt, err := wire.Decode(raw)
	if err != nil {
		var de *wire.DecodeError
		if errors.As(err, &de) {
			c.logger.Warn("dropped malformed frame",
				zap.String("event", de.Event),
				zap.Error(de))
		} else {
			c.logger.Warn("dropped undecodable frame", zap.Error(err))
		}
		if c.bus != nil {
			c.bus.Publish(bus.Event{
				Kind:      "conn.decode_error",
				Timestamp: time.Now(),
				Payload:   err,
			})
		}
		return
	}

	if c.bus != nil {
		c.bus.Publish(bus.Event{
			Kind:      "server." + evt.Name(),
			Timestamp: time.Now(),
			Payload:   evt,
		})
	}
}
