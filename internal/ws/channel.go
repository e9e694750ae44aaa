package ws

import (
	"sync"

	"github.com/vitalguard/vitalguard/internal/fanout"
)

// channel adapts one connection's outgoing buffer to fanout.Channel.
// Send never blocks: a full buffer means the peer is not draining fast enough
// and the send fails, which the dispatcher treats as terminal.
type channel struct {
	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newChannel(buf int) *channel {
	return &channel{send: make(chan []byte, buf)}
}

func (c *channel) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fanout.ErrChannelClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return fanout.ErrSendBufferFull
	}
}

// Close marks the channel dead and closes the outgoing buffer, which ends the
// connection's write pump. Safe to call more than once.
func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}
