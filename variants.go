package elink

import (
	"context"
	"time"

	"elink/adapters/elegoocc"
	"elink/adapters/elegoocc2"
	"elink/adapters/moonraker"
	"elink/filetransfer/httpupload"
	"elink/protocols/mqttproto"
	"elink/protocols/wsproto"
)

// sessionStrategy is the per-variant behavior object the session factory
// picks based on PrinterType. It plays the role the original engine gave
// to subclassing (ElegooFdmCC2Printer, ElegooFdmCCPrinter,
// GenericMoonrakerPrinter): everything that differs between printer
// families is collected here instead of in the Session itself, so
// Session stays a single concrete type composed with one of these rather
// than a base class with overrides.
type sessionStrategy interface {
	CreateProtocol(info PrinterInfo) (Protocol, error)
	CreateAdapter(info PrinterInfo) (MessageAdapter, error)
	CreateFileTransfer(info PrinterInfo) (FileTransfer, error)

	// DefaultTimeout is used for any Request call made with timeout <= 0.
	DefaultTimeout() time.Duration

	// OnConnected runs once a connection is established or re-established.
	OnConnected(s *Session, params ConnectPrinterParams)

	// OnDisconnecting runs before the protocol's Disconnect is called.
	OnDisconnecting(s *Session)

	// StartPrint lets a variant override the shared executeRequest path
	// entirely. Only the Moonraker variant does.
	StartPrint(s *Session, ctx context.Context, params StartPrintParams, timeout time.Duration) VoidResult
}

// baseStrategy implements the parts of sessionStrategy common to every
// variant (CC, CC2 and Moonraker all embed it): no file-transfer channel
// beyond the shared HTTP uploader, a 10s default timeout, no special
// connect/disconnect hooks,
// and StartPrint going through the shared request path like any other
// operation.
type baseStrategy struct{}

func (baseStrategy) CreateFileTransfer(info PrinterInfo) (FileTransfer, error) {
	return httpupload.New(info.Host, info.Port), nil
}

func (baseStrategy) DefaultTimeout() time.Duration { return defaultRequestTimeout }

func (baseStrategy) OnConnected(*Session, ConnectPrinterParams) {}

func (baseStrategy) OnDisconnecting(*Session) {}

func (baseStrategy) StartPrint(s *Session, ctx context.Context, params StartPrintParams, timeout time.Duration) VoidResult {
	return executeRequest[struct{}](s, ctx, MethodStartPrint, params, timeout)
}

// ccStrategy is the Elegoo FDM CC variant: MQTT transport, the CC wire
// format, nothing else special.
type ccStrategy struct {
	baseStrategy
}

func (ccStrategy) CreateProtocol(info PrinterInfo) (Protocol, error) {
	return mqttproto.New(info.PrinterID, info.Host, info.Port), nil
}

func (ccStrategy) CreateAdapter(info PrinterInfo) (MessageAdapter, error) {
	return elegoocc.New(info.PrinterID), nil
}

// cc2Strategy is the Elegoo FDM CC2 variant. Same transport as CC, a
// CC2-specific wire format whose adapter tracks a monotonic status
// sequence number that must be zeroed on every (re)connect.
type cc2Strategy struct {
	baseStrategy
}

func (cc2Strategy) CreateProtocol(info PrinterInfo) (Protocol, error) {
	return mqttproto.New(info.PrinterID, info.Host, info.Port), nil
}

func (cc2Strategy) CreateAdapter(info PrinterInfo) (MessageAdapter, error) {
	return elegoocc2.New(info.PrinterID), nil
}

// OnConnected resets the adapter's status sequence counter every time a
// CC2 session (re)connects, the way ElegooFdmCC2Printer::onConnected did
// by dynamic-casting its adapter.
func (cc2Strategy) OnConnected(s *Session, params ConnectPrinterParams) {
	if resetter, ok := s.adapter.(StatusSequenceResetter); ok {
		resetter.ResetStatusSequence()
	}
}

// moonrakerStrategy is the Klipper/Moonraker variant: WebSocket JSON-RPC
// transport, no CC-style sequence tracking, and a fire-and-forget
// StartPrint.
type moonrakerStrategy struct {
	baseStrategy
}

func (moonrakerStrategy) CreateProtocol(info PrinterInfo) (Protocol, error) {
	return wsproto.New(info.PrinterID, info.Host, info.Port), nil
}

func (moonrakerStrategy) CreateAdapter(info PrinterInfo) (MessageAdapter, error) {
	return moonraker.New(info.PrinterID), nil
}

const moonrakerStartPrintTimeout = 1 * time.Second

// StartPrint fires the START_PRINT request with a short timeout and
// discards whatever it returns, always reporting success immediately. A
// real Klipper print can take minutes to actually begin; callers learn
// the true outcome from status events and polling, not from this call's
// return value. This preserves GenericMoonrakerPrinter::startPrint
// exactly — it is a deliberate asymmetry with every other variant, not
// an oversight.
func (moonrakerStrategy) StartPrint(s *Session, ctx context.Context, params StartPrintParams, timeout time.Duration) VoidResult {
	fireCtx, cancel := context.WithTimeout(ctx, moonrakerStartPrintTimeout)
	defer cancel()
	executeRequest[struct{}](s, fireCtx, MethodStartPrint, params, moonrakerStartPrintTimeout)
	return voidSuccess()
}
