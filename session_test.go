package elink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProtocol is a Protocol whose Send records the frame and whose
// test owner drives onMessage/onStatusChanged directly via the handlers
// it captures, rather than simulating any real transport.
type fakeProtocol struct {
	mu             sync.Mutex
	connected      bool
	sent           [][]byte
	messageHandler func([]byte)
	statusHandler  func(bool)
	connectErr     error
}

func (p *fakeProtocol) Connect(ctx context.Context, params ConnectPrinterParams) error {
	if p.connectErr != nil {
		return p.connectErr
	}
	p.mu.Lock()
	p.connected = true
	handler := p.statusHandler
	p.mu.Unlock()

	// Real protocols (mqttproto, wsproto) report the connected transition
	// synchronously, before Connect returns. Mirror that here so tests
	// exercise the same ordering.
	if handler != nil {
		handler(true)
	}
	return nil
}

func (p *fakeProtocol) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}

func (p *fakeProtocol) Send(ctx context.Context, frame []byte) error {
	p.mu.Lock()
	p.sent = append(p.sent, frame)
	p.mu.Unlock()
	return nil
}

func (p *fakeProtocol) SetMessageHandler(h func([]byte)) { p.messageHandler = h }
func (p *fakeProtocol) SetStatusChangedHandler(h func(bool)) { p.statusHandler = h }

// fakeFrame is the wire shape fakeAdapter speaks: just enough to drive
// the response/event paths without a real vendor format.
type fakeFrame struct {
	ID        string          `json:"id,omitempty"`
	Code      ErrorCode       `json:"code"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	EventKind string          `json:"event_kind,omitempty"`
}

type fakeAdapter struct {
	next atomic.Int64
}

func (a *fakeAdapter) EncodeRequest(req BizRequest) (string, []byte, error) {
	id := fmt.Sprintf("r%d", a.next.Add(1))
	raw, err := json.Marshal(fakeFrame{ID: id})
	return id, raw, err
}

func (a *fakeAdapter) Decode(frame []byte) (DecodeOutcome, error) {
	var f fakeFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return DecodeOutcome{}, err
	}
	if f.EventKind != "" {
		return DecodeOutcome{Kind: DecodeEvent, Event: BizEvent{Kind: f.EventKind}}, nil
	}
	return DecodeOutcome{Kind: DecodeResponse, RequestID: f.ID, Code: f.Code, Message: f.Message, Data: f.Data}, nil
}

type fakeFileTransfer struct{}

func (fakeFileTransfer) Upload(context.Context, string, io.Reader, int64) error { return nil }
func (fakeFileTransfer) Close() error                                          { return nil }

// fakeStrategy constructs a fixed fakeProtocol/fakeAdapter pair so tests
// can reach into them directly.
type fakeStrategy struct {
	protocol *fakeProtocol
	adapter  *fakeAdapter
	onConn   func(*Session, ConnectPrinterParams)
}

func (s *fakeStrategy) CreateProtocol(PrinterInfo) (Protocol, error)         { return s.protocol, nil }
func (s *fakeStrategy) CreateAdapter(PrinterInfo) (MessageAdapter, error)    { return s.adapter, nil }
func (s *fakeStrategy) CreateFileTransfer(PrinterInfo) (FileTransfer, error) { return fakeFileTransfer{}, nil }
func (s *fakeStrategy) DefaultTimeout() time.Duration                       { return 200 * time.Millisecond }
func (s *fakeStrategy) OnDisconnecting(*Session)                            {}
func (s *fakeStrategy) OnConnected(sess *Session, params ConnectPrinterParams) {
	if s.onConn != nil {
		s.onConn(sess, params)
	}
}
func (s *fakeStrategy) StartPrint(sess *Session, ctx context.Context, params StartPrintParams, timeout time.Duration) VoidResult {
	return executeRequest[struct{}](sess, ctx, MethodStartPrint, params, timeout)
}

func newTestSession(t *testing.T, strategy *fakeStrategy) *Session {
	t.Helper()
	session := newSession(PrinterInfo{PrinterID: "printer-1"}, strategy)
	if err := session.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return session
}

func TestSessionRequestHappyPath(t *testing.T) {
	strategy := &fakeStrategy{protocol: &fakeProtocol{}, adapter: &fakeAdapter{}}
	session := newTestSession(t, strategy)

	if result := session.Connect(context.Background(), ConnectPrinterParams{}); result.Code != ErrorCodeOK {
		t.Fatalf("Connect failed: %+v", result)
	}
	defer session.Disconnect(context.Background())

	resultCh := make(chan BizResult[json.RawMessage], 1)
	go func() {
		resultCh <- session.Request(context.Background(), BizRequest{Method: MethodGetPrinterStatus}, time.Second)
	}()

	var sentFrame []byte
	for i := 0; i < 100; i++ {
		strategy.protocol.mu.Lock()
		if len(strategy.protocol.sent) > 0 {
			sentFrame = strategy.protocol.sent[0]
		}
		strategy.protocol.mu.Unlock()
		if sentFrame != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if sentFrame == nil {
		t.Fatalf("request was never sent over the protocol")
	}

	var sent fakeFrame
	if err := json.Unmarshal(sentFrame, &sent); err != nil {
		t.Fatalf("failed to unmarshal sent frame: %v", err)
	}

	reply, _ := json.Marshal(fakeFrame{ID: sent.ID, Code: ErrorCodeOK, Data: json.RawMessage(`{"state":"printing"}`)})
	session.onMessage(reply)

	select {
	case result := <-resultCh:
		if result.Code != ErrorCodeOK {
			t.Fatalf("got code %v, want OK", result.Code)
		}
	case <-time.After(time.Second):
		t.Fatalf("Request never returned")
	}
}

func TestSessionRequestTimesOutAndDropsLateResponse(t *testing.T) {
	strategy := &fakeStrategy{protocol: &fakeProtocol{}, adapter: &fakeAdapter{}}
	session := newTestSession(t, strategy)

	if result := session.Connect(context.Background(), ConnectPrinterParams{}); result.Code != ErrorCodeOK {
		t.Fatalf("Connect failed: %+v", result)
	}
	defer session.Disconnect(context.Background())

	result := session.Request(context.Background(), BizRequest{Method: MethodGetPrinterStatus}, 50*time.Millisecond)
	if result.Code != ErrorCodeTimeout {
		t.Fatalf("got code %v, want TIMEOUT", result.Code)
	}
	if n := session.pendingCount(); n != 0 {
		t.Fatalf("pending table has %d entries after timeout, want 0", n)
	}

	strategy.protocol.mu.Lock()
	sentFrame := strategy.protocol.sent[len(strategy.protocol.sent)-1]
	strategy.protocol.mu.Unlock()
	var sent fakeFrame
	json.Unmarshal(sentFrame, &sent)

	// A response that arrives after the timeout must be silently dropped,
	// not misattributed to some later request reusing the id space.
	late, _ := json.Marshal(fakeFrame{ID: sent.ID, Code: ErrorCodeOK})
	session.onMessage(late)
}

func TestSessionDisconnectCancelsPendingRequests(t *testing.T) {
	strategy := &fakeStrategy{protocol: &fakeProtocol{}, adapter: &fakeAdapter{}}
	session := newTestSession(t, strategy)

	if result := session.Connect(context.Background(), ConnectPrinterParams{}); result.Code != ErrorCodeOK {
		t.Fatalf("Connect failed: %+v", result)
	}

	resultCh := make(chan BizResult[json.RawMessage], 1)
	go func() {
		resultCh <- session.Request(context.Background(), BizRequest{Method: MethodGetPrinterStatus}, 5*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	session.Disconnect(context.Background())

	select {
	case result := <-resultCh:
		if result.Code != ErrorCodeDisconnected {
			t.Fatalf("got code %v, want DISCONNECTED", result.Code)
		}
	case <-time.After(time.Second):
		t.Fatalf("Request never returned after Disconnect")
	}
}

func TestSessionConnectFiresOnConnectedOnceWithCurrentParams(t *testing.T) {
	var calls atomic.Int32
	var seen []ConnectPrinterParams
	var seenMu sync.Mutex

	strategy := &fakeStrategy{protocol: &fakeProtocol{}, adapter: &fakeAdapter{}}
	strategy.onConn = func(_ *Session, params ConnectPrinterParams) {
		calls.Add(1)
		seenMu.Lock()
		seen = append(seen, params)
		seenMu.Unlock()
	}
	session := newTestSession(t, strategy)

	params := ConnectPrinterParams{Host: "10.0.0.5", Port: 9999}
	if result := session.Connect(context.Background(), params); result.Code != ErrorCodeOK {
		t.Fatalf("Connect failed: %+v", result)
	}
	defer session.Disconnect(context.Background())

	if n := calls.Load(); n != 1 {
		t.Fatalf("OnConnected called %d times, want 1", n)
	}
	seenMu.Lock()
	defer seenMu.Unlock()
	if len(seen) != 1 || seen[0] != params {
		t.Fatalf("OnConnected saw params %+v, want %+v", seen, params)
	}
}

func TestSessionNotConnectedRejectsRequest(t *testing.T) {
	strategy := &fakeStrategy{protocol: &fakeProtocol{}, adapter: &fakeAdapter{}}
	session := newTestSession(t, strategy)

	result := session.Request(context.Background(), BizRequest{Method: MethodGetPrinterStatus}, time.Second)
	if result.Code != ErrorCodeNotConnected {
		t.Fatalf("got code %v, want NOT_CONNECTED", result.Code)
	}
}

// fakeResetAdapter embeds fakeAdapter and records ResetStatusSequence
// calls, standing in for the real CC2 adapter so cc2Strategy's
// on-connected hook can be exercised without the MQTT transport.
type fakeResetAdapter struct {
	fakeAdapter
	resets atomic.Int32
}

func (a *fakeResetAdapter) ResetStatusSequence() { a.resets.Add(1) }

func TestCC2StrategyResetsStatusSequenceOnConnect(t *testing.T) {
	resetAdapter := &fakeResetAdapter{}
	protocol := &fakeProtocol{}

	session := newSession(PrinterInfo{PrinterID: "printer-cc2"}, &fakeStrategy{protocol: protocol, adapter: &resetAdapter.fakeAdapter})
	session.adapter = resetAdapter
	session.protocol = protocol
	protocol.SetMessageHandler(session.onMessage)
	protocol.SetStatusChangedHandler(session.onProtocolStatusChanged)
	session.initialized = true
	session.strategy = cc2Strategy{}

	if result := session.Connect(context.Background(), ConnectPrinterParams{}); result.Code != ErrorCodeOK {
		t.Fatalf("Connect failed: %+v", result)
	}

	if resetAdapter.resets.Load() != 1 {
		t.Fatalf("ResetStatusSequence called %d times, want 1", resetAdapter.resets.Load())
	}

	session.Disconnect(context.Background())
}
