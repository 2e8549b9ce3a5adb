// Package logchannel implements the Log Channel (C1): an in-memory,
// single-producer/multi-consumer broadcast of LogMsg values with full
// history replay for late subscribers.
//
// Grounded on the subscription-ownership invariant of
// pkg/events/manager.go's Connection type (one goroutine owns a
// subscriber's outbound channel) and the catch-up/backlog concept of its
// catchupLimit, adapted here into an unbounded in-memory history (bounded
// only by the execution's lifetime, per spec.md §4.1) instead of a
// database-backed catch-up query.
package logchannel

import "sync"

// subscriberBuffer is the per-subscriber channel capacity. Push never
// blocks on a slow reader: once a subscriber's buffer is full, further
// messages to that subscriber are dropped for it alone, while other
// subscribers and the writer are unaffected. Nothing signals the gap to
// the subscriber that missed them.
const subscriberBuffer = 256

// Msg is the channel's element type. logwriter.Msg satisfies this via
// type identity — kept as `any` here so logchannel has no dependency on
// the log message schema, matching the layering in SPEC_FULL.md (C1 sits
// below C2's LogMsg type).
type Msg = any

type subscriber struct {
	ch     chan Msg
	once   sync.Once
	closed bool
}

func (s *subscriber) send(m Msg) {
	select {
	case s.ch <- m:
	default:
		// Backpressure: this subscriber is behind. Drop for it alone;
		// other subscribers and the writer are unaffected.
	}
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Channel is one execution's Log Channel.
type Channel struct {
	mu       sync.Mutex
	history  []Msg
	subs     map[*subscriber]struct{}
	finished bool
}

// New creates an empty, open Channel.
func New() *Channel {
	return &Channel{subs: make(map[*subscriber]struct{})}
}

// Push appends msg to history and wakes all subscribers. Never blocks
// beyond handing the message to each subscriber's own buffer, never
// fails. If msg is the channel-closing sentinel (recognized by the
// caller via its own Finished convention — logwriter calls Close()
// separately after pushing the Finished message) has no special
// handling here; Close() is what actually closes subscriber streams.
func (c *Channel) Push(msg Msg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.history = append(c.history, msg)
	for s := range c.subs {
		s.send(msg)
	}
}

// Close marks the channel Finished: no further Push is accepted and every
// current and future subscriber's stream terminates after replaying
// whatever history preceded the close.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.finished = true
	for s := range c.subs {
		s.close()
	}
	c.subs = make(map[*subscriber]struct{})
}

// History returns a snapshot of all messages pushed so far, for
// synchronous readers such as HTTP polling (spec.md §4.1 history()).
func (c *Channel) History() []Msg {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Msg, len(c.history))
	copy(out, c.history)
	return out
}

// Subscription is the lazy stream returned by Subscribe: a full replay of
// history followed by live messages, terminating after Finished.
type Subscription struct {
	ch   <-chan Msg
	sub  *subscriber
	stop func()
}

// Messages returns the channel to range over.
func (s *Subscription) Messages() <-chan Msg { return s.ch }

// Unsubscribe detaches this subscriber early. Dropping a stream MUST NOT
// affect the writer or other subscribers (spec.md §5 cancellation).
func (s *Subscription) Unsubscribe() { s.stop() }

// Subscribe returns a Subscription that first replays full history, then
// delivers live messages, terminating after Finished.
func (c *Channel) Subscribe() *Subscription {
	c.mu.Lock()
	snapshot := make([]Msg, len(c.history))
	copy(snapshot, c.history)

	s := &subscriber{ch: make(chan Msg, subscriberBuffer)}
	finished := c.finished
	if !finished {
		c.subs[s] = struct{}{}
	}
	c.mu.Unlock()

	out := make(chan Msg, subscriberBuffer)
	go func() {
		defer close(out)
		for _, m := range snapshot {
			out <- m
		}
		if finished {
			return
		}
		for m := range s.ch {
			out <- m
		}
	}()

	stop := func() {
		c.mu.Lock()
		delete(c.subs, s)
		c.mu.Unlock()
		s.close()
	}

	return &Subscription{ch: out, sub: s, stop: stop}
}
