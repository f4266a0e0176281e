// Package elegoocc2 implements elink's MessageAdapter port (C2) for the
// Elegoo FDM CC2 wire format. It is the same flat JSON envelope as CC,
// plus a monotonic sequence number on status events that this adapter
// uses to drop out-of-order or duplicate pushes — the counter is reset
// every time the owning session (re)connects via ResetStatusSequence,
// which the cc2 session variant calls from its on-connected hook.
package elegoocc2

import (
	"encoding/json"
	"fmt"
	"sync/atomic"

	"elink/wire"

	"github.com/google/uuid"
)

type frame struct {
	RequestID string          `json:"id,omitempty"`
	Method    wire.MethodType `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Code      *int            `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Event     string          `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
}

const statusEventKind = "status"

// Adapter is a MessageAdapter for one CC2 printer connection.
type Adapter struct {
	printerID string
	lastSeq   atomic.Int64
}

// New constructs an Adapter. printerID is kept only for error messages.
func New(printerID string) *Adapter {
	return &Adapter{printerID: printerID}
}

// ResetStatusSequence zeroes the last-seen sequence number. Called once
// per (re)connect so a printer that rebooted its own sequence counter
// isn't mistaken for a stream of duplicates.
func (a *Adapter) ResetStatusSequence() {
	a.lastSeq.Store(0)
}

func (a *Adapter) EncodeRequest(req wire.Request) (string, []byte, error) {
	requestID := uuid.NewString()

	raw, err := json.Marshal(frame{
		RequestID: requestID,
		Method:    req.Method,
		Params:    req.Params,
	})
	if err != nil {
		return "", nil, fmt.Errorf("elink/elegoocc2: encode %s: %w", req.Method, err)
	}
	return requestID, raw, nil
}

func (a *Adapter) Decode(raw []byte) (wire.DecodeOutcome, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return wire.DecodeOutcome{}, fmt.Errorf("elink/elegoocc2: decode frame: %w", err)
	}

	if f.Event != "" {
		if f.Event == statusEventKind && f.Seq != 0 {
			last := a.lastSeq.Load()
			if last != 0 && f.Seq <= last {
				return wire.DecodeOutcome{Kind: wire.DecodeIgnore}, nil
			}
			a.lastSeq.Store(f.Seq)
		}
		return wire.DecodeOutcome{
			Kind:  wire.DecodeEvent,
			Event: wire.Event{Kind: f.Event, Payload: f.Payload},
		}, nil
	}

	if f.RequestID == "" {
		return wire.DecodeOutcome{Kind: wire.DecodeIgnore}, nil
	}

	code := wire.ErrorCodeOK
	if f.Code != nil && *f.Code != 0 {
		code = wire.ErrorCodeInternal
	}

	return wire.DecodeOutcome{
		Kind:      wire.DecodeResponse,
		RequestID: f.RequestID,
		Code:      code,
		Message:   f.Message,
		Data:      f.Data,
	}, nil
}
