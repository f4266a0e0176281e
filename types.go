package elink

import (
	"elink/connparams"
	"elink/wire"
)

// PrinterType selects which Session variant the factory constructs for a
// printer. It is a closed set — an unrecognized tag is always treated as
// PrinterTypeUnknown.
type PrinterType string

const (
	PrinterTypeElegooFdmCC      PrinterType = "ELEGOO_FDM_CC"
	PrinterTypeElegooFdmCC2     PrinterType = "ELEGOO_FDM_CC2"
	PrinterTypeElegooFdmKlipper PrinterType = "ELEGOO_FDM_KLIPPER"
	PrinterTypeGenericFdmKlipper PrinterType = "GENERIC_FDM_KLIPPER"
	PrinterTypeUnknown          PrinterType = "UNKNOWN"
)

// PrinterInfo is the opaque descriptor the caller hands to the factory and
// registry. PrinterID is the registry key and must be unique within a
// Registry instance.
type PrinterInfo struct {
	PrinterID   string      `json:"printer_id"`
	PrinterType PrinterType `json:"printer_type"`
	Name        string      `json:"name,omitempty"`
	Host        string      `json:"host,omitempty"`
	Port        int         `json:"port,omitempty"`
}

// ConnectionStatus tracks a Session's connection lifecycle. The zero value
// is ConnectionStatusDisconnected.
type ConnectionStatus int32

const (
	ConnectionStatusDisconnected ConnectionStatus = iota
	ConnectionStatusConnecting
	ConnectionStatusConnected
	ConnectionStatusDisconnecting
)

func (s ConnectionStatus) String() string {
	switch s {
	case ConnectionStatusDisconnected:
		return "DISCONNECTED"
	case ConnectionStatusConnecting:
		return "CONNECTING"
	case ConnectionStatusConnected:
		return "CONNECTED"
	case ConnectionStatusDisconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// ConnectPrinterParams parameterizes Session.Connect and is also the value
// forwarded to the Protocol port and to variant on-connected hooks.
type ConnectPrinterParams = connparams.Params

// MethodType is the closed set of business operations a BizRequest may
// name.
type MethodType = wire.MethodType

const (
	MethodStartPrint           = wire.MethodStartPrint
	MethodPausePrint           = wire.MethodPausePrint
	MethodResumePrint          = wire.MethodResumePrint
	MethodStopPrint            = wire.MethodStopPrint
	MethodSetAutoRefill        = wire.MethodSetAutoRefill
	MethodGetPrinterAttributes = wire.MethodGetPrinterAttributes
	MethodGetPrinterStatus     = wire.MethodGetPrinterStatus
	MethodGetCanvasStatus      = wire.MethodGetCanvasStatus
	MethodUpdatePrinterName    = wire.MethodUpdatePrinterName
)

// ErrorCode is the ELINK_ERROR_CODE namespace. OK is the only success
// value; every other code is a distinct failure reason surfaced to
// callers.
type ErrorCode = wire.ErrorCode

const (
	ErrorCodeOK               = wire.ErrorCodeOK
	ErrorCodeNotConnected     = wire.ErrorCodeNotConnected
	ErrorCodeAlreadyConnected = wire.ErrorCodeAlreadyConnected
	ErrorCodeEncodeFailed     = wire.ErrorCodeEncodeFailed
	ErrorCodeSendFailed       = wire.ErrorCodeSendFailed
	ErrorCodeTimeout          = wire.ErrorCodeTimeout
	ErrorCodeDecodeMismatch   = wire.ErrorCodeDecodeMismatch
	ErrorCodeDisconnected     = wire.ErrorCodeDisconnected
	ErrorCodeUnsupported      = wire.ErrorCodeUnsupported
	ErrorCodeInternal         = wire.ErrorCodeInternal
)

// BizRequest is the uniform business-level request shape. Params is
// marshaled JSON of whatever typed parameter struct the caller used; the
// adapter is what turns it into a wire frame.
type BizRequest = wire.Request

// BizResult is the uniform business-level response shape. Success is
// Code == ErrorCodeOK. Data is present only when the adapter (or typed
// conversion) actually produced a payload; a response that carries a
// payload keeps it whatever its Code.
type BizResult[T any] struct {
	Code    ErrorCode
	Message string
	Data    *T
}

func successResult[T any](data *T) BizResult[T] {
	return BizResult[T]{Code: ErrorCodeOK, Data: data}
}

func errorResult[T any](code ErrorCode, message string) BizResult[T] {
	return BizResult[T]{Code: code, Message: message}
}

// VoidResult is the result shape for operations that return no payload on
// success.
type VoidResult = BizResult[struct{}]

func voidSuccess() VoidResult {
	return successResult[struct{}](nil)
}

// BizEvent is a printer-initiated notification — status push, job
// progress, error notice — delivered through the event callback. Events
// carry no request id.
type BizEvent = wire.Event

// Typed request parameters for the business operations in MethodType.

type PrinterBaseParams struct{}

type StartPrintParams struct {
	FileName   string `json:"file_name"`
	ToolheadID int    `json:"toolhead_id,omitempty"`
}

type SetAutoRefillParams struct {
	ToolheadID int  `json:"toolhead_id"`
	Enabled    bool `json:"enabled"`
}

type PrinterAttributesParams struct{}

type PrinterStatusParams struct{}

type GetCanvasStatusParams struct{}

type UpdatePrinterNameParams struct {
	Name string `json:"name"`
}

// Typed result payloads.

type PrinterAttributesResult struct {
	Model          string `json:"model"`
	FirmwareVersion string `json:"firmware_version"`
	Nozzles        int    `json:"nozzles"`
}

type PrinterStatusResult struct {
	State        string  `json:"state"`
	Progress     float64 `json:"progress"`
	CurrentFile  string  `json:"current_file,omitempty"`
	TimeLeftSecs int     `json:"time_left_secs,omitempty"`
}

type GetCanvasStatusResult struct {
	Occupied bool   `json:"occupied"`
	Detail   string `json:"detail,omitempty"`
}
