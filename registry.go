package elink

import (
	"context"
	"sync"
)

// Registry owns a set of Sessions keyed by printer id (C7). It mirrors
// PrinterManager: creation is deduplicated (a repeated CreatePrinter for
// an id already present returns the existing session instead of building
// a second one), and the connection/event callback slots reach only
// sessions created or added after they're set — installing a new
// callback is deliberately not retroactive (see the Open Question
// decision in DESIGN.md).
type Registry struct {
	mu       sync.Mutex
	printers map[string]*Session

	callbackMu         sync.Mutex
	connectionCallback func(printerID string, status ConnectionStatus)
	eventCallback      func(printerID string, event BizEvent)

	initialized bool
}

// NewRegistry constructs an empty, uninitialized Registry.
func NewRegistry() *Registry {
	return &Registry{printers: make(map[string]*Session)}
}

// Initialize marks the registry ready for use. Idempotent.
func (r *Registry) Initialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = true
}

// Cleanup disconnects every session and empties the registry. Idempotent;
// safe to call on an already-cleaned-up or never-initialized registry.
func (r *Registry) Cleanup() {
	r.DisconnectAllPrinters()

	r.mu.Lock()
	r.printers = make(map[string]*Session)
	r.initialized = false
	r.mu.Unlock()
}

// CreatePrinter returns the existing session for info.PrinterID if one is
// already registered; otherwise it builds one via NewSessionForPrinter,
// installs the current event callback (not the connection callback,
// which only AddConnectedPrinter invokes), inserts it, and returns it.
func (r *Registry) CreatePrinter(info PrinterInfo) (*Session, error) {
	r.mu.Lock()
	if existing, ok := r.printers[info.PrinterID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.mu.Unlock()

	session, err := NewSessionForPrinter(info)
	if err != nil {
		return nil, err
	}

	r.callbackMu.Lock()
	if r.eventCallback != nil {
		cb := r.eventCallback
		id := info.PrinterID
		session.SetEventCallback(func(event BizEvent) { cb(id, event) })
	}
	r.callbackMu.Unlock()

	r.mu.Lock()
	if existing, ok := r.printers[info.PrinterID]; ok {
		r.mu.Unlock()
		return existing, nil
	}
	r.printers[info.PrinterID] = session
	r.mu.Unlock()

	return session, nil
}

// GetPrinter returns the session for id, or nil if none is registered.
func (r *Registry) GetPrinter(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.printers[id]
}

// RemovePrinter disconnects (if connected) and unregisters the session
// for id. Reports whether a session was present to remove.
func (r *Registry) RemovePrinter(id string) bool {
	r.mu.Lock()
	session, ok := r.printers[id]
	if ok {
		delete(r.printers, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if session.IsConnected() {
		session.Disconnect(context.Background())
	}
	return true
}

// AddConnectedPrinter inserts an already-connected session, replacing any
// existing entry for the same id, installs the current event callback on
// it, and invokes the current connection callback once with the
// session's status at that moment.
func (r *Registry) AddConnectedPrinter(session *Session) {
	r.callbackMu.Lock()
	connCb := r.connectionCallback
	eventCb := r.eventCallback
	r.callbackMu.Unlock()

	id := session.ID()
	if eventCb != nil {
		session.SetEventCallback(func(event BizEvent) { eventCb(id, event) })
	}
	if connCb != nil {
		connCb(id, session.ConnectionStatus())
	}

	r.mu.Lock()
	r.printers[id] = session
	r.mu.Unlock()
}

// GetAllPrinters returns a snapshot of every registered session,
// connected or not.
func (r *Registry) GetAllPrinters() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.printers))
	for _, session := range r.printers {
		out = append(out, session)
	}
	return out
}

// GetConnectedPrinters returns a snapshot of every registered session
// that is currently connected.
func (r *Registry) GetConnectedPrinters() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.printers))
	for _, session := range r.printers {
		if session.IsConnected() {
			out = append(out, session)
		}
	}
	return out
}

// GetCachedPrinters returns the PrinterInfo every registered session was
// constructed with, regardless of connection state.
func (r *Registry) GetCachedPrinters() []PrinterInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]PrinterInfo, 0, len(r.printers))
	for _, session := range r.printers {
		out = append(out, session.Info())
	}
	return out
}

// DisconnectAllPrinters clears each session's event callback and then
// disconnects it, the way PrinterManager::disconnectAllPrinters does —
// callbacks are dropped first so a disconnect storm doesn't fan out a
// burst of now-meaningless events to callers who are themselves tearing
// down.
func (r *Registry) DisconnectAllPrinters() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.printers))
	for _, session := range r.printers {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	for _, session := range sessions {
		session.SetEventCallback(nil)
		session.Disconnect(context.Background())
	}
}

// SetPrinterConnectionCallback installs the callback that
// AddConnectedPrinter invokes once, with the added session's status at
// that moment. Sessions do not hold this callback, so later status
// changes of a session are not reported through it, and sessions already
// registered are not reported to it.
func (r *Registry) SetPrinterConnectionCallback(cb func(printerID string, status ConnectionStatus)) {
	r.callbackMu.Lock()
	r.connectionCallback = cb
	r.callbackMu.Unlock()
}

// SetPrinterEventCallback installs the callback applied to sessions
// created or added from this point forward. Not retroactive, for the
// same reason: see DESIGN.md's Open Question decision.
func (r *Registry) SetPrinterEventCallback(cb func(printerID string, event BizEvent)) {
	r.callbackMu.Lock()
	r.eventCallback = cb
	r.callbackMu.Unlock()
}
