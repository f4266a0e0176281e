package elink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const defaultRequestTimeout = 10 * time.Second
const statusPollInterval = 1 * time.Second

// Session owns everything needed to talk to one printer: a protocol
// (shared — it hands the protocol a callback that reaches back into the
// session), an adapter, an optional file-transfer channel, the
// pending-request table, connection status, the event callback slot, and
// the status-polling goroutine. Initialize must be called exactly once
// before any other method; a Session must not be copied (copy it by
// sharing the pointer instead, the way the registry and callers do).
type Session struct {
	info     PrinterInfo
	strategy sessionStrategy

	protocol     Protocol
	adapter      MessageAdapter
	fileTransfer FileTransfer

	pending *pendingTable

	isConnected atomic.Bool

	statusMu sync.Mutex
	status   ConnectionStatus

	callbackMu    sync.Mutex
	eventCallback func(BizEvent)

	pollMu      sync.Mutex
	pollRunning atomic.Bool
	pollStop    chan struct{}
	pollDone    chan struct{}

	lastConnectMu sync.Mutex
	lastConnect   ConnectPrinterParams

	defaultTimeout time.Duration

	initialized bool
}

// newSession constructs a Session for info using strategy. It does not
// call Initialize — the factory does that exactly once after
// construction.
func newSession(info PrinterInfo, strategy sessionStrategy) *Session {
	return &Session{
		info:           info,
		strategy:       strategy,
		pending:        newPendingTable(),
		defaultTimeout: strategy.DefaultTimeout(),
	}
}

// ID returns the printer id this session was constructed for.
func (s *Session) ID() string { return s.info.PrinterID }

// Info returns the PrinterInfo this session was constructed for.
func (s *Session) Info() PrinterInfo { return s.info }

// Initialize creates the protocol, adapter, and file-transfer channel via
// the variant's factory hooks and registers the inbound protocol
// callbacks. Precondition: called exactly once, before any other Session
// method; the caller (the session factory) owns that guarantee — a
// second call has undefined effects, matching the original engine this
// is ported from.
func (s *Session) Initialize() error {
	protocol, err := s.strategy.CreateProtocol(s.info)
	if err != nil {
		return fmt.Errorf("elink: create protocol for %s: %w", s.info.PrinterID, err)
	}
	adapter, err := s.strategy.CreateAdapter(s.info)
	if err != nil {
		return fmt.Errorf("elink: create adapter for %s: %w", s.info.PrinterID, err)
	}
	fileTransfer, err := s.strategy.CreateFileTransfer(s.info)
	if err != nil {
		return fmt.Errorf("elink: create file transfer for %s: %w", s.info.PrinterID, err)
	}

	s.protocol = protocol
	s.adapter = adapter
	s.fileTransfer = fileTransfer

	s.protocol.SetMessageHandler(s.onMessage)
	s.protocol.SetStatusChangedHandler(s.onProtocolStatusChanged)

	s.initialized = true
	return nil
}

// IsConnected is a lock-free read of the connected flag.
func (s *Session) IsConnected() bool { return s.isConnected.Load() }

// ConnectionStatus returns the current status under the status lock.
func (s *Session) ConnectionStatus() ConnectionStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// FileTransfer returns the file-transfer channel the variant constructed,
// or nil if this variant doesn't support one.
func (s *Session) FileTransfer() FileTransfer { return s.fileTransfer }

func (s *Session) setStatus(status ConnectionStatus) {
	s.statusMu.Lock()
	s.status = status
	s.statusMu.Unlock()
}

// Connect transitions DISCONNECTED -> CONNECTING -> CONNECTED. If already
// connected it returns success with a notice rather than erroring.
func (s *Session) Connect(ctx context.Context, params ConnectPrinterParams) VoidResult {
	if s.IsConnected() {
		return VoidResult{Code: ErrorCodeOK, Message: "already connected"}
	}

	s.setStatus(ConnectionStatusConnecting)

	// lastConnect must be current before protocol.Connect runs: some
	// protocols (mqttproto, wsproto) report the connected transition
	// synchronously, from inside Connect, before it returns.
	s.lastConnectMu.Lock()
	s.lastConnect = params
	s.lastConnectMu.Unlock()

	if err := s.protocol.Connect(ctx, params); err != nil {
		s.setStatus(ConnectionStatusDisconnected)
		printerLog(s.info.PrinterID).WithError(err).Warn("connect failed")
		return errorResult[struct{}](ErrorCodeInternal, err.Error())
	}

	// transitionToConnected is a no-op here if the protocol's status
	// callback already ran it synchronously above; it only does real work
	// when the protocol reports its connected transition asynchronously.
	s.transitionToConnected(params)
	return voidSuccess()
}

// transitionToConnected marks the session connected, runs the variant's
// on-connected hook, and starts status polling — exactly once per connect
// attempt. Both Connect and onProtocolStatusChanged call this; the CAS on
// isConnected guarantees that whichever fires first wins and the other is
// a no-op, so the on-connected hook never double-fires and never sees a
// stale params value.
func (s *Session) transitionToConnected(params ConnectPrinterParams) {
	if !s.isConnected.CompareAndSwap(false, true) {
		return
	}
	s.setStatus(ConnectionStatusConnected)

	s.strategy.OnConnected(s, params)
	s.startStatusPolling()
}

// Disconnect runs the on-disconnecting hook, cancels every pending
// request, stops and joins the polling goroutine, asks the protocol to
// disconnect, and leaves the session DISCONNECTED. It never panics and
// always leaves the session in a disconnected state, even if the
// underlying transport errors on the way down. Safe to call more than
// once.
func (s *Session) Disconnect(ctx context.Context) VoidResult {
	s.setStatus(ConnectionStatusDisconnecting)

	s.strategy.OnDisconnecting(s)

	s.pending.cancelAll("disconnected")
	s.stopStatusPolling()

	var result VoidResult
	if s.protocol != nil {
		if err := s.protocol.Disconnect(ctx); err != nil {
			printerLog(s.info.PrinterID).WithError(err).Warn("disconnect reported an error")
			result = errorResult[struct{}](ErrorCodeInternal, err.Error())
		} else {
			result = voidSuccess()
		}
	} else {
		result = voidSuccess()
	}

	s.isConnected.Store(false)
	s.setStatus(ConnectionStatusDisconnected)
	return result
}

// SetEventCallback replaces the callback invoked for printer-initiated
// events. Passing nil clears it.
func (s *Session) SetEventCallback(cb func(BizEvent)) {
	s.callbackMu.Lock()
	s.eventCallback = cb
	s.callbackMu.Unlock()
}

// Request is the generic synchronous request path every typed operation
// is built on. timeout of 0 uses the session's default.
func (s *Session) Request(ctx context.Context, req BizRequest, timeout time.Duration) BizResult[json.RawMessage] {
	if !s.IsConnected() {
		return errorResult[json.RawMessage](ErrorCodeNotConnected, "session is not connected")
	}

	requestID, frame, err := s.adapter.EncodeRequest(req)
	if err != nil {
		return errorResult[json.RawMessage](ErrorCodeEncodeFailed, err.Error())
	}

	// Register before send: a response can never race ahead of its own
	// caller registering to receive it.
	entry, err := s.pending.register(requestID)
	if err != nil {
		return errorResult[json.RawMessage](ErrorCodeInternal, err.Error())
	}

	if err := s.protocol.Send(ctx, frame); err != nil {
		s.pending.remove(requestID)
		return errorResult[json.RawMessage](ErrorCodeSendFailed, err.Error())
	}

	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-entry.completion:
		return result
	case <-timer.C:
		s.pending.remove(requestID)
		return errorResult[json.RawMessage](ErrorCodeTimeout, "request timed out")
	case <-ctx.Done():
		s.pending.remove(requestID)
		return errorResult[json.RawMessage](ErrorCodeDisconnected, ctx.Err().Error())
	}
}

// onMessage demultiplexes one inbound wire frame into a completed pending
// request, a dispatched event, or nothing. Decode errors and panics from
// the adapter are logged and dropped — they never propagate to the
// caller of Send or to the transport.
func (s *Session) onMessage(frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			printerLog(s.info.PrinterID).Errorf("recovered panic decoding inbound frame: %v", r)
		}
	}()

	outcome, err := s.adapter.Decode(frame)
	if err != nil {
		printerLog(s.info.PrinterID).WithError(err).Debug("dropping malformed inbound frame")
		return
	}

	switch outcome.Kind {
	case DecodeResponse:
		result := BizResult[json.RawMessage]{Code: outcome.Code, Message: outcome.Message}
		if outcome.Data != nil {
			result.Data = &outcome.Data
		}
		s.pending.complete(outcome.RequestID, result)

	case DecodeEvent:
		s.callbackMu.Lock()
		cb := s.eventCallback
		s.callbackMu.Unlock()

		if cb == nil {
			return
		}
		s.dispatchEvent(cb, outcome.Event)

	case DecodeIgnore:
		// nothing to do
	}
}

// dispatchEvent invokes the event callback outside of any session lock —
// callbacks may call back into the session (e.g. to issue another
// request), and holding callbackMu across the call would deadlock against
// SetEventCallback.
func (s *Session) dispatchEvent(cb func(BizEvent), event BizEvent) {
	defer func() {
		if r := recover(); r != nil {
			printerLog(s.info.PrinterID).Errorf("recovered panic in event callback: %v", r)
		}
	}()
	cb(event)
}

// onProtocolStatusChanged is the Protocol port's inbound status callback.
// A transition to disconnected cancels every pending request and stops
// polling; a transition to connected (re)runs the connected hook and
// (re)starts polling if it isn't already running.
func (s *Session) onProtocolStatusChanged(connected bool) {
	if !connected {
		s.isConnected.Store(false)
		s.setStatus(ConnectionStatusDisconnected)
		s.pending.cancelAll("connection lost")
		s.stopStatusPolling()
		return
	}

	s.lastConnectMu.Lock()
	params := s.lastConnect
	s.lastConnectMu.Unlock()

	s.transitionToConnected(params)
}

// startStatusPolling launches the polling goroutine if one isn't already
// running. Idempotent.
func (s *Session) startStatusPolling() {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	if s.pollRunning.Load() {
		return
	}
	s.pollRunning.Store(true)
	s.pollStop = make(chan struct{})
	s.pollDone = make(chan struct{})

	go s.statusPollingLoop(s.pollStop, s.pollDone)
}

// stopStatusPolling signals the polling goroutine to exit and waits for
// it to finish. Idempotent.
func (s *Session) stopStatusPolling() {
	s.pollMu.Lock()
	if !s.pollRunning.Load() {
		s.pollMu.Unlock()
		return
	}
	stop, done := s.pollStop, s.pollDone
	s.pollMu.Unlock()

	close(stop)
	<-done
}

// statusPollingLoop polls GET_PRINTER_STATUS at a fixed cadence until
// either the first successful response arrives or stop is closed.
func (s *Session) statusPollingLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		s.pollRunning.Store(false)
		close(done)
	}()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), statusPollInterval)
			result := s.GetPrinterStatus(ctx, PrinterStatusParams{}, statusPollInterval)
			cancel()
			if result.Code == ErrorCodeOK {
				return
			}
		}
	}
}

// executeRequest is the generic typed-request helper every business
// operation wraps Request with: marshal params, call Request, and
// convert the JSON payload back into T. A conversion failure preserves
// the incoming code/message and logs a warning rather than failing the
// call — the caller can tell data was dropped because Data is nil.
func executeRequest[T any](s *Session, ctx context.Context, method MethodType, params any, timeout time.Duration) BizResult[T] {
	raw, err := json.Marshal(params)
	if err != nil {
		return errorResult[T](ErrorCodeEncodeFailed, err.Error())
	}

	raw2 := BizResult[json.RawMessage]{}
	raw2 = s.Request(ctx, BizRequest{Method: method, Params: raw}, timeout)

	out := BizResult[T]{Code: raw2.Code, Message: raw2.Message}
	if raw2.Data == nil {
		return out
	}

	var data T
	if _, isVoid := any(data).(struct{}); isVoid {
		return out
	}
	if err := json.Unmarshal(*raw2.Data, &data); err != nil {
		printerLog(s.info.PrinterID).WithError(err).WithField("decode_error", ErrorCodeDecodeMismatch).
			Warnf("failed to convert response data for %s", method)
		return out
	}
	out.Data = &data
	return out
}

// Typed business operations. Each is a thin wrapper over Request; the
// Moonraker variant overrides StartPrint, every other operation uses the
// shared implementation below directly.

func (s *Session) StartPrint(ctx context.Context, params StartPrintParams, timeout time.Duration) VoidResult {
	return s.strategy.StartPrint(s, ctx, params, timeout)
}

func (s *Session) PausePrint(ctx context.Context, params PrinterBaseParams, timeout time.Duration) VoidResult {
	return executeRequest[struct{}](s, ctx, MethodPausePrint, params, timeout)
}

func (s *Session) ResumePrint(ctx context.Context, params PrinterBaseParams, timeout time.Duration) VoidResult {
	return executeRequest[struct{}](s, ctx, MethodResumePrint, params, timeout)
}

func (s *Session) StopPrint(ctx context.Context, params PrinterBaseParams, timeout time.Duration) VoidResult {
	return executeRequest[struct{}](s, ctx, MethodStopPrint, params, timeout)
}

func (s *Session) SetAutoRefill(ctx context.Context, params SetAutoRefillParams, timeout time.Duration) VoidResult {
	return executeRequest[struct{}](s, ctx, MethodSetAutoRefill, params, timeout)
}

func (s *Session) GetPrinterAttributes(ctx context.Context, params PrinterAttributesParams, timeout time.Duration) BizResult[PrinterAttributesResult] {
	return executeRequest[PrinterAttributesResult](s, ctx, MethodGetPrinterAttributes, params, timeout)
}

func (s *Session) GetPrinterStatus(ctx context.Context, params PrinterStatusParams, timeout time.Duration) BizResult[PrinterStatusResult] {
	return executeRequest[PrinterStatusResult](s, ctx, MethodGetPrinterStatus, params, timeout)
}

func (s *Session) GetCanvasStatus(ctx context.Context, params GetCanvasStatusParams, timeout time.Duration) BizResult[GetCanvasStatusResult] {
	return executeRequest[GetCanvasStatusResult](s, ctx, MethodGetCanvasStatus, params, timeout)
}

func (s *Session) UpdatePrinterName(ctx context.Context, params UpdatePrinterNameParams, timeout time.Duration) VoidResult {
	result := executeRequest[struct{}](s, ctx, MethodUpdatePrinterName, params, timeout)
	if result.Code == ErrorCodeOK {
		s.info.Name = params.Name
	}
	return result
}

// pendingCount reports the number of in-flight requests. Exposed for
// tests verifying the disconnect-drains-the-table invariant.
func (s *Session) pendingCount() int { return s.pending.len() }
