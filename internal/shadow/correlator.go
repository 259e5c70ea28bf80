package shadow

import (
	"fmt"
	"sync"
	"time"
)

// requestKey identifies a pending request. At most one request per key can
// be pending at any time.
type requestKey struct {
	deviceID  string
	operation Operation
}

// requestResult settles a pending request: exactly one of doc or err.
type requestResult struct {
	doc *Document
	err error
}

// pendingRequest tracks one in-flight request. The channel is buffered so
// settlement never blocks on an absent caller.
type pendingRequest struct {
	ch    chan requestResult
	timer *time.Timer
}

// correlator turns the one-way publish/subscribe channel into awaitable
// request/response pairs.
//
// Settlement is exactly-once by construction: every path (resolve, reject,
// timeout, supersession, disconnect) removes the entry from the table under
// the lock before delivering, so a request that has settled once can never
// settle again.
type correlator struct {
	mu      sync.Mutex
	pending map[requestKey]*pendingRequest
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[requestKey]*pendingRequest)}
}

// add registers a new pending request and returns the channel its result
// will arrive on.
//
// If a request is already pending for the same key it is immediately failed
// with ErrRequestSuperseded before the new entry is created: only the most
// recent caller-issued request per key may ever resolve. The supersession
// is synchronous, so there is no window in which a stale request could win.
func (c *correlator) add(deviceID string, op Operation, timeout time.Duration) <-chan requestResult {
	key := requestKey{deviceID: deviceID, operation: op}

	c.mu.Lock()
	if old, exists := c.pending[key]; exists {
		delete(c.pending, key)
		old.timer.Stop()
		old.ch <- requestResult{err: fmt.Errorf("%w: newer %s request for device %s",
			ErrRequestSuperseded, op, deviceID)}
	}

	p := &pendingRequest{ch: make(chan requestResult, 1)}
	p.timer = time.AfterFunc(timeout, func() {
		c.expire(key, p, timeout)
	})
	c.pending[key] = p
	c.mu.Unlock()

	return p.ch
}

// expire handles a deadline timer firing. The identity check guards the
// race where the entry was settled or superseded between the timer firing
// and the lock being acquired.
func (c *correlator) expire(key requestKey, p *pendingRequest, timeout time.Duration) {
	c.mu.Lock()
	current, exists := c.pending[key]
	if !exists || current != p {
		c.mu.Unlock()
		return
	}
	delete(c.pending, key)
	c.mu.Unlock()

	p.ch <- requestResult{err: fmt.Errorf("%w: no response within %s", ErrRequestTimeout, timeout)}
}

// resolve settles the matching pending request with a document.
// No-op if no entry exists (late or duplicate response).
func (c *correlator) resolve(deviceID string, op Operation, doc *Document) {
	if p, ok := c.take(deviceID, op); ok {
		p.ch <- requestResult{doc: doc}
	}
}

// reject settles the matching pending request with an error.
// No-op if no entry exists.
func (c *correlator) reject(deviceID string, op Operation, err error) {
	if p, ok := c.take(deviceID, op); ok {
		p.ch <- requestResult{err: err}
	}
}

// failAll settles every pending request with the given error and empties
// the table. Used on disconnect.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[requestKey]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pending {
		p.timer.Stop()
		p.ch <- requestResult{err: err}
	}
}

// take removes and returns the entry for a key, stopping its timer.
func (c *correlator) take(deviceID string, op Operation) (*pendingRequest, bool) {
	key := requestKey{deviceID: deviceID, operation: op}

	c.mu.Lock()
	p, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
		p.timer.Stop()
	}
	c.mu.Unlock()

	return p, ok
}

// count returns the number of pending requests.
func (c *correlator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
