package types

import (
	"errors"
	"fmt"
)

// Stable error codes surfaced at the HTTP/WebSocket boundary.
const (
	ErrCodeDuplicateExecution = "DUPLICATE_EXECUTION"
	ErrCodeExecutionFailed    = "EXECUTION_FAILED"
	ErrCodeNotActive          = "OPPORTUNITY_NOT_ACTIVE"
	ErrCodeSizeLimitExceeded  = "SIZE_LIMIT_EXCEEDED"
	ErrCodeAutoExecuteOff     = "AUTO_EXECUTE_DISABLED"
)

// Sentinel errors for coordinator guardrails.
var (
	ErrDuplicateExecution   = errors.New("opportunity is already executing")
	ErrOpportunityNotActive = errors.New("opportunity is not in detected status")
	ErrSizeLimitExceeded    = errors.New("recommended size exceeds max position size")
)

// VenueAPIError is a failed call against a venue REST endpoint.
type VenueAPIError struct {
	Venue   Venue
	Op      string // "place_order", "cancel_order", "order_status", "list_markets"
	Code    string
	Message string
}

func (e *VenueAPIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("venue %s %s: %s (%s)", e.Venue, e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("venue %s %s: %s", e.Venue, e.Op, e.Message)
}

// ExecutionError wraps a failed two-leg execution with its stable code.
type ExecutionError struct {
	Code          string
	OpportunityID string
	Err           error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: opportunity %s: %v", e.Code, e.OpportunityID, e.Err)
	}
	return fmt.Sprintf("%s: opportunity %s", e.Code, e.OpportunityID)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
