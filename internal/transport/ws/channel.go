// Package ws is the websocket rendition of the device channel: JSON envelopes
// over a single long-lived connection per device.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleetlink/fleetlink/internal/protocol"
)

const (
	sendBuffer   = 64
	sendTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
)

var errChannelClosed = errors.New("channel closed")

// channel adapts one websocket connection to the session.Channel interface.
// Writes are serialized through a buffered send channel drained by a single
// write pump.
type channel struct {
	conn       *websocket.Conn
	sendCh     chan protocol.Envelope
	done       chan struct{}
	closeOnce  sync.Once
	remoteAddr string
}

func newChannel(conn *websocket.Conn, remoteAddr string) *channel {
	ch := &channel{
		conn:       conn,
		sendCh:     make(chan protocol.Envelope, sendBuffer),
		done:       make(chan struct{}),
		remoteAddr: remoteAddr,
	}
	go ch.writePump()
	return ch
}

func (c *channel) Send(kind protocol.Kind, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		raw = data
	}

	env := protocol.Envelope{Kind: kind, Payload: raw}
	select {
	case c.sendCh <- env:
		return nil
	case <-c.done:
		return errChannelClosed
	case <-time.After(sendTimeout):
		return fmt.Errorf("send buffer full for %s", c.remoteAddr)
	}
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.conn.Close()
}

func (c *channel) RemoteAddr() string { return c.remoteAddr }

func (c *channel) writePump() {
	for {
		select {
		case env := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
