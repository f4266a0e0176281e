// Package moonraker implements elink's MessageAdapter port (C2) for
// Klipper's Moonraker API: JSON-RPC 2.0 over the wsproto WebSocket
// transport. Requests carry a numeric-as-string id; notifications (no
// id) become events.
package moonraker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"

	"elink/wire"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcFrame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// methodNames maps elink's MethodType onto the Moonraker RPC method name
// it corresponds to.
var methodNames = map[wire.MethodType]string{
	wire.MethodStartPrint:           "printer.print.start",
	wire.MethodPausePrint:           "printer.print.pause",
	wire.MethodResumePrint:          "printer.print.resume",
	wire.MethodStopPrint:            "printer.print.cancel",
	wire.MethodSetAutoRefill:        "server.spoolman.set_active_spool",
	wire.MethodGetPrinterAttributes: "printer.info",
	wire.MethodGetPrinterStatus:     "printer.objects.query",
	wire.MethodGetCanvasStatus:      "server.files.metadata",
	wire.MethodUpdatePrinterName:    "server.config.set_name",
}

// Adapter is a MessageAdapter for one Moonraker connection.
type Adapter struct {
	printerID string
	nextID    atomic.Int64
}

// New constructs an Adapter. printerID is kept only for error messages.
func New(printerID string) *Adapter {
	return &Adapter{printerID: printerID}
}

func (a *Adapter) EncodeRequest(req wire.Request) (string, []byte, error) {
	method, ok := methodNames[req.Method]
	if !ok {
		return "", nil, fmt.Errorf("elink/moonraker: no RPC mapping for method %q", req.Method)
	}

	id := a.nextID.Add(1)
	idStr := strconv.FormatInt(id, 10)

	raw, err := json.Marshal(rpcFrame{
		JSONRPC: "2.0",
		ID:      json.RawMessage(idStr),
		Method:  method,
		Params:  req.Params,
	})
	if err != nil {
		return "", nil, fmt.Errorf("elink/moonraker: encode %s: %w", req.Method, err)
	}
	return idStr, raw, nil
}

func (a *Adapter) Decode(raw []byte) (wire.DecodeOutcome, error) {
	var f rpcFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return wire.DecodeOutcome{}, fmt.Errorf("elink/moonraker: decode frame: %w", err)
	}

	// A notification has a method and no id: it's a printer-initiated
	// event rather than a reply to one of our requests.
	if len(f.ID) == 0 && f.Method != "" {
		return wire.DecodeOutcome{
			Kind:  wire.DecodeEvent,
			Event: wire.Event{Kind: f.Method, Payload: f.Params},
		}, nil
	}

	if len(f.ID) == 0 {
		return wire.DecodeOutcome{Kind: wire.DecodeIgnore}, nil
	}

	requestID := string(f.ID)
	if unquoted, err := strconv.Unquote(requestID); err == nil {
		requestID = unquoted
	}

	if f.Error != nil {
		return wire.DecodeOutcome{
			Kind:      wire.DecodeResponse,
			RequestID: requestID,
			Code:      wire.ErrorCodeInternal,
			Message:   f.Error.Message,
		}, nil
	}

	return wire.DecodeOutcome{
		Kind:      wire.DecodeResponse,
		RequestID: requestID,
		Code:      wire.ErrorCodeOK,
		Data:      f.Result,
	}, nil
}
