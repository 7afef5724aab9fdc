package tracking

import "sync"

// Channel is the ordered, one-way push stream from the engine to a single
// listener. Producers never block: pushed events queue in FIFO order until
// the consumer drains them from Events.
//
// Close ends the stream once queued events have been delivered. Detach is
// called by the consumer when it goes away and stops delivery immediately.
// Pushing after either is a no-op.
type Channel struct {
	mu       sync.Mutex
	queue    []Event
	closed   bool
	wake     chan struct{}
	detached chan struct{}
	detach   sync.Once
	out      chan Event
}

// NewChannel starts a channel and its delivery goroutine.
func NewChannel() *Channel {
	c := &Channel{
		wake:     make(chan struct{}, 1),
		detached: make(chan struct{}),
		out:      make(chan Event),
	}
	go c.pump()
	return c
}

// Events yields queued events in push order. It is closed after Close once
// the queue is drained, or right after Detach.
func (c *Channel) Events() <-chan Event {
	return c.out
}

// Push appends ev to the stream. It reports false when the channel no longer
// accepts events.
func (c *Channel) Push(ev Event) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, ev)
	c.mu.Unlock()

	c.signal()
	return true
}

// Close stops accepting events. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

// Detach drops any undelivered events and releases the delivery goroutine.
func (c *Channel) Detach() {
	c.Close()
	c.detach.Do(func() { close(c.detached) })
}

// Closed reports whether the channel stopped accepting events.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Channel) pump() {
	defer close(c.out)

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-c.wake:
				continue
			case <-c.detached:
				return
			}
		}
		ev := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		select {
		case c.out <- ev:
		case <-c.detached:
			return
		}
	}
}
