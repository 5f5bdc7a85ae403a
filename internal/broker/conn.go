package broker

import (
	"net"
	"sync"
)

// defaultWriteQueueSize is the bounded outbound queue depth per session
// (spec.md §4.6). A session whose queue fills because the client cannot
// keep up is treated as a slow consumer: the broker drops the connection
// and fires its will, rather than growing the queue without bound.
const defaultWriteQueueSize = 256

// conn wraps one accepted TCP connection. Reads happen on readLoop's own
// goroutine; writes are funneled through out so a slow client can never
// block the goroutine that is making routing decisions for other
// sessions.
type conn struct {
	id       string
	clientID string // set once CONNECT is processed
	netConn  net.Conn

	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(id string, nc net.Conn, queueSize int) *conn {
	if queueSize <= 0 {
		queueSize = defaultWriteQueueSize
	}
	return &conn{
		id:      id,
		netConn: nc,
		out:     make(chan []byte, queueSize),
		closed:  make(chan struct{}),
	}
}

// enqueue queues frame for delivery. It returns false without blocking if
// the outbound queue is full, signaling the caller to treat this session
// as a slow consumer.
func (c *conn) enqueue(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// writeLoop drains the outbound queue to the network connection until the
// connection is closed.
func (c *conn) writeLoop() {
	for {
		select {
		case frame := <-c.out:
			if _, err := c.netConn.Write(frame); err != nil {
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.netConn.Close()
	})
}
