package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeNoFunds indicates a sweep against an address holding nothing
	ErrCodeNoFunds ErrorCode = "NO_FUNDS"

	// ErrCodeSessionNotFound indicates a claim for an unknown ghost session
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// ErrCodeTimeout indicates a policy timeout (poll ceiling, quote deadline)
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeGateway indicates a transient ledger/RPC failure
	ErrCodeGateway ErrorCode = "GATEWAY"

	// ErrCodeConfirmationAmbiguous indicates that neither confirmation nor the
	// signature status check could prove the outcome of a submitted transaction
	ErrCodeConfirmationAmbiguous ErrorCode = "CONFIRMATION_AMBIGUOUS"

	// ErrCodeUserCancelled indicates the wallet declined to sign
	ErrCodeUserCancelled ErrorCode = "USER_CANCELLED"

	// ErrCodeInvalidState indicates an operation not allowed in the current state
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeTransaction indicates a transaction that landed but failed on chain
	ErrCodeTransaction ErrorCode = "TRANSACTION"

	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeDatabase indicates database operation errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// PaymentError is an error raised by the payment core. Session carries the
// ghost session id when one is involved.
type PaymentError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Session  string                 `json:"session,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewPaymentError creates a new PaymentError
func NewPaymentError(code ErrorCode, session, message string, cause error) *PaymentError {
	return &PaymentError{
		Code:     code,
		Message:  message,
		Session:  session,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *PaymentError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Session != "" {
		return fmt.Sprintf("[%s:%s] %s", e.Session, e.Code, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *PaymentError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *PaymentError) WithContext(key string, value interface{}) *PaymentError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *PaymentError) WithSeverity(severity Severity) *PaymentError {
	e.Severity = severity
	return e
}

// IsRetryable returns true if the error is retryable
func (e *PaymentError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeGateway:
		return true
	case ErrCodeDatabase:
		return e.Severity != SeverityCritical
	default:
		return false
	}
}

func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInternal, ErrCodeConfirmationAmbiguous:
		return SeverityCritical
	case ErrCodeDatabase, ErrCodeTransaction:
		return SeverityHigh
	case ErrCodeGateway, ErrCodeNoFunds, ErrCodeTimeout:
		return SeverityMedium
	case ErrCodeValidation, ErrCodeConfig, ErrCodeSessionNotFound, ErrCodeInvalidState:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Common error constructors

// NewNoFundsError creates an error for a sweep against an empty address.
func NewNoFundsError(session, address string) *PaymentError {
	return NewPaymentError(ErrCodeNoFunds, session, "no funds to sweep", nil).
		WithContext("address", address)
}

// NewSessionNotFoundError creates an error for an unknown ghost session.
func NewSessionNotFoundError(session string) *PaymentError {
	msg := "ghost session not found"
	if session == "" {
		msg = "no claimable ghost session"
	}
	return NewPaymentError(ErrCodeSessionNotFound, session, msg, nil)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(session, message string) *PaymentError {
	return NewPaymentError(ErrCodeTimeout, session, message, nil)
}

// NewGatewayError creates a transient gateway error
func NewGatewayError(message string, cause error) *PaymentError {
	return NewPaymentError(ErrCodeGateway, "", message, cause)
}

// NewConfirmationAmbiguousError creates an error for an unprovable submission.
func NewConfirmationAmbiguousError(session, signature string, cause error) *PaymentError {
	return NewPaymentError(ErrCodeConfirmationAmbiguous, session, "transaction outcome unknown", cause).
		WithContext("signature", signature)
}

// NewUserCancelledError creates an error for a declined signature request.
func NewUserCancelledError(cause error) *PaymentError {
	return NewPaymentError(ErrCodeUserCancelled, "", "signing cancelled by user", cause)
}

// NewInvalidStateError creates an error for a rejected state transition.
func NewInvalidStateError(operation, state string) *PaymentError {
	return NewPaymentError(ErrCodeInvalidState, "", fmt.Sprintf("%s not allowed in state %s", operation, state), nil)
}

// NewTransactionError creates a transaction error
func NewTransactionError(session, message string, cause error) *PaymentError {
	return NewPaymentError(ErrCodeTransaction, session, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *PaymentError {
	return NewPaymentError(ErrCodeValidation, "", message, nil)
}

// NewDatabaseError creates a database error
func NewDatabaseError(message string, cause error) *PaymentError {
	return NewPaymentError(ErrCodeDatabase, "", message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *PaymentError {
	return NewPaymentError(ErrCodeConfig, "", message, nil)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *PaymentError {
	return NewPaymentError(ErrCodeInternal, "", message, cause)
}
