package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WrapPaymentError wraps an error as a PaymentError if it isn't already one
func WrapPaymentError(err error, code ErrorCode, session, message string) *PaymentError {
	if err == nil {
		return nil
	}

	var payErr *PaymentError
	if errors.As(err, &payErr) {
		payErr.WithContext("wrapped_message", message)
		if session != "" && payErr.Session == "" {
			payErr.Session = session
		}
		return payErr
	}

	return NewPaymentError(code, session, message, err)
}

// IsCode checks if an error is a PaymentError with the given code
func IsCode(err error, code ErrorCode) bool {
	var payErr *PaymentError
	if errors.As(err, &payErr) {
		return payErr.Code == code
	}
	return false
}

// CodeOf returns the code of a PaymentError, or ErrCodeInternal for anything else.
func CodeOf(err error) ErrorCode {
	var payErr *PaymentError
	if errors.As(err, &payErr) {
		return payErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var payErr *PaymentError
	if errors.As(err, &payErr) {
		return payErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"too many requests",
		"rate limit",
		"database is locked",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// GetSeverity returns the severity of an error
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityInfo
	}

	var payErr *PaymentError
	if errors.As(err, &payErr) {
		return payErr.Severity
	}
	return SeverityHigh
}
