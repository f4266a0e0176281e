// Package elegoocc implements elink's MessageAdapter port (C2) for the
// Elegoo FDM CC wire format: flat JSON frames over MQTT, correlated by a
// string request id that this adapter mints fresh on every
// EncodeRequest call.
package elegoocc

import (
	"encoding/json"
	"fmt"

	"elink/wire"

	"github.com/google/uuid"
)

// frame is the CC wire envelope. Requests set Method/Params/RequestID;
// responses set RequestID/Code/Message/Data; events set Event/Payload
// instead of a RequestID.
type frame struct {
	RequestID string          `json:"id,omitempty"`
	Method    wire.MethodType `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Code      *int            `json:"code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Event     string          `json:"event,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Adapter is a MessageAdapter for one CC printer connection.
type Adapter struct {
	printerID string
}

// New constructs an Adapter. printerID is kept only for error messages.
func New(printerID string) *Adapter {
	return &Adapter{printerID: printerID}
}

func (a *Adapter) EncodeRequest(req wire.Request) (string, []byte, error) {
	requestID := uuid.NewString()

	raw, err := json.Marshal(frame{
		RequestID: requestID,
		Method:    req.Method,
		Params:    req.Params,
	})
	if err != nil {
		return "", nil, fmt.Errorf("elink/elegoocc: encode %s: %w", req.Method, err)
	}
	return requestID, raw, nil
}

func (a *Adapter) Decode(raw []byte) (wire.DecodeOutcome, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return wire.DecodeOutcome{}, fmt.Errorf("elink/elegoocc: decode frame: %w", err)
	}

	if f.Event != "" {
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
