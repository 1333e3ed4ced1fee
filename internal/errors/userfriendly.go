package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapLinkError wraps interface open failures with user-friendly context
func WrapLinkError(err error, ifname string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to open network interface %s", ifname),
		Reason:  extractLinkReason(err),
		Hint:    "Raw EtherCAT frames need a dedicated interface and usually root privileges",
		Try:     "cecat scan --sim  (to verify the tool without hardware)",
		Err:     err,
	}
}

// WrapBusError wraps field-bus errors with user-friendly context
func WrapBusError(err error, operation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Bus operation failed: %s", operation),
		Reason:  extractBusReason(err),
		Hint:    "A slave may be disconnected, unpowered, or still converging to the requested state",
		Try:     "Run 'scan' again to re-enumerate the segment, then check 'status'",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Check the YAML syntax and field names against the sample config",
		Try:     fmt.Sprintf("cecat scan --config %s --sim", configPath),
		Err:     err,
	}
}

func extractLinkReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "permission") || strings.Contains(errStr, "Operation not permitted") {
		return "Insufficient privileges to open a raw socket"
	}
	if strings.Contains(errStr, "No such device") || strings.Contains(errStr, "not found") {
		return "Interface does not exist on this machine"
	}
	if strings.Contains(errStr, "is not up") || strings.Contains(errStr, "link down") {
		return "Interface is down - no cable or not configured up"
	}

	return "Could not attach to the network interface"
}

func extractBusReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "working counter") {
		return "Fewer slaves answered than expected - a device dropped off the ring"
	}
	if strings.Contains(errStr, "did not reach") {
		return "One or more slaves refused the state transition"
	}
	if strings.Contains(errStr, "no response") || strings.Contains(errStr, "timeout") {
		return "The frame never came back - ring may be broken"
	}
	if strings.Contains(errStr, "no slaves") {
		return "Broadcast enumeration found an empty segment"
	}

	return "Field-bus communication error occurred"
}
