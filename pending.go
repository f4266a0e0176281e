package elink

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// pendingRequest is one in-flight request waiting for its response.
// completion is a single-shot channel — exactly one of the frame
// demultiplexer or the timeout/cancel path will ever send on it, and
// whichever one does removes the entry from the table first so the other
// finds nothing left to act on.
type pendingRequest struct {
	requestID  string
	completion chan BizResult[json.RawMessage]
	enqueuedAt time.Time
}

// pendingTable correlates request ids to waiting callers. It is guarded
// by a single mutex held only long enough to insert, remove, or bulk
// cancel entries — signalling a completion always happens after the lock
// is released, so a blocked caller can never stall another goroutine
// trying to register or cancel.
type pendingTable struct {
	mu      sync.Mutex
	entries map[string]*pendingRequest
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[string]*pendingRequest)}
}

// register inserts a new entry for requestID. It fails if the id is
// already present — that should never happen given MessageAdapter's
// freshness guarantee, but the table still reports it rather than
// silently clobbering an existing waiter.
func (t *pendingTable) register(requestID string) (*pendingRequest, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[requestID]; exists {
		return nil, fmt.Errorf("elink: request id %q already pending", requestID)
	}

	entry := &pendingRequest{
		requestID:  requestID,
		completion: make(chan BizResult[json.RawMessage], 1),
		enqueuedAt: time.Now(),
	}
	t.entries[requestID] = entry
	return entry, nil
}

// complete removes the entry for requestID, if any, and signals its
// completion. A miss (already removed by a timeout, or never registered)
// is a silent no-op — this is how a late or duplicate response is
// dropped.
func (t *pendingTable) complete(requestID string, result BizResult[json.RawMessage]) bool {
	t.mu.Lock()
	entry, ok := t.entries[requestID]
	if ok {
		delete(t.entries, requestID)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	entry.completion <- result
	return true
}

// remove deletes the entry for requestID without signalling it. Used by
// the request caller itself after a timeout (idempotent: a concurrent
// complete() may have already removed it) and after a post-send failure
// that must not leave a dangling entry.
func (t *pendingTable) remove(requestID string) {
	t.mu.Lock()
	delete(t.entries, requestID)
	t.mu.Unlock()
}

// cancelAll removes every entry and signals each one with a DISCONNECTED
// result carrying reason as its message. Used on disconnect and on
// connection-lost transitions.
func (t *pendingTable) cancelAll(reason string) {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]*pendingRequest)
	t.mu.Unlock()

	for _, entry := range entries {
		entry.completion <- errorResult[json.RawMessage](ErrorCodeDisconnected, reason)
	}
}

// len reports the number of in-flight entries. Exposed for tests that
// verify the table drains on disconnect.
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
