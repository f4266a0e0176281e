// Package connparams defines the connection-parameter shape shared
// between elink's Session and the concrete Protocol implementations
// under protocols/. It exists as its own leaf package so a Protocol
// implementation can depend on the parameter type without importing the
// elink package itself, which imports the Protocol implementations.
package connparams

import "time"

// Params parameterizes a Protocol's Connect call.
type Params struct {
	Host     string
	Port     int
	Username string
	Password string
	// Timeout bounds the underlying transport connect call. Zero means
	// "use the transport's own default".
	Timeout time.Duration
}
