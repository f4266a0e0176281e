package elink

import "elink/wire"

// DecodeKind tags the variant a MessageAdapter produces from an inbound
// wire frame.
type DecodeKind = wire.DecodeKind

const (
	DecodeIgnore   = wire.DecodeIgnore
	DecodeResponse = wire.DecodeResponse
	DecodeEvent    = wire.DecodeEvent
)

// DecodeOutcome is the tagged result of decoding one inbound wire frame.
// For DecodeResponse, RequestID/Code/Message/Data are populated. For
// DecodeEvent, Event is populated. DecodeIgnore carries nothing further —
// the frame is neither a response nor an event the session need act on.
type DecodeOutcome = wire.DecodeOutcome

// MessageAdapter is the message-translation port (C2): it encodes
// business requests into wire frames and decodes wire frames back into
// responses or events. EncodeRequest must return a fresh, unique request
// id on every call — the session relies on that freshness and never
// checks for collisions itself.
type MessageAdapter interface {
	EncodeRequest(req BizRequest) (requestID string, frame []byte, err error)
	Decode(frame []byte) (DecodeOutcome, error)
}

// StatusSequenceResetter is an optional capability a MessageAdapter may
// implement. The Elegoo CC2 adapter carries a monotonic status sequence
// counter that must be zeroed every time the session (re)connects; the
// session looks for this interface and calls it from the CC2 variant's
// on-connected hook only — adapters that don't need it simply don't
// implement it.
type StatusSequenceResetter interface {
	ResetStatusSequence()
}
