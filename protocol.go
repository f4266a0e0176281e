package elink

import "context"

// Protocol is the transport port (C1): a capability to connect, send, and
// disconnect, plus two inbound hooks the Session registers once during
// Initialize. Send is single-writer from the Session's point of view —
// only Session code ever calls it. The inbound hooks may be invoked from
// any goroutine the concrete transport happens to use.
type Protocol interface {
	Connect(ctx context.Context, params ConnectPrinterParams) error
	Disconnect(ctx context.Context) error
	Send(ctx context.Context, frame []byte) error

	// SetMessageHandler installs the callback invoked for every inbound
	// wire frame. Called once, during Session.Initialize.
	SetMessageHandler(handler func(frame []byte))

	// SetStatusChangedHandler installs the callback invoked whenever the
	// transport's connection state flips. Called once, during
	// Session.Initialize.
	SetStatusChangedHandler(handler func(connected bool))
}
