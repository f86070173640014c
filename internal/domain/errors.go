package domain

import "fmt"

// Error types for consistent error handling across the finance API.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	switch e.Resource {
	case "user":
		return "User not found"
	case "account":
		return "Account not found"
	case "budget":
		return "Budget not found"
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthorized indicates the caller has no resolvable identity.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Unauthorized"
}

// ErrRateLimited indicates the abuse guard denied the request for quota reasons.
type ErrRateLimited struct {
	Remaining    int
	ResetSeconds int
}

func (e *ErrRateLimited) Error() string {
	return "Too many requests. Please try again later."
}

// ErrRequestBlocked indicates the abuse guard denied the request for a policy reason
// other than rate limiting.
type ErrRequestBlocked struct {
	Reason string
}

func (e *ErrRequestBlocked) Error() string {
	return "Request Blocked"
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrDelivery indicates the email provider did not accept a message.
type ErrDelivery struct {
	Provider string
	Err      error
}

func (e *ErrDelivery) Error() string {
	return fmt.Sprintf("email delivery failed [%s]: %v", e.Provider, e.Err)
}

func (e *ErrDelivery) Unwrap() error {
	return e.Err
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
