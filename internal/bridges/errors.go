// Package bridges talks to the platform's internal gRPC services: the
// integration service that fronts embedding providers and the vault that
// stores provider credentials.
package bridges

import "fmt"

const (
	BridgeIntegration = "integration"
	BridgeVault       = "vault"
)

// BridgeError is any failure reported by, or on the way to, a bridge service.
type BridgeError struct {
	Bridge  string
	Code    int
	Message string
	Cause   error
}

func (e *BridgeError) Error() string {
	if e == nil {
		return "bridge call failed"
	}
	msg := fmt.Sprintf("%s bridge", e.Bridge)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code=%d)", e.Code)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *BridgeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
