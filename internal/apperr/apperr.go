// Package apperr defines the error taxonomy surfaced by the POS use cases.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError is returned when input is rejected before any storage call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Message != "" {
		return e.Message
	}
	return "validation failed"
}

func Validation(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// AuthError is returned when no operator session exists or the session lacks a role.
type AuthError struct {
	Message   string
	Forbidden bool
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Forbidden {
		return "forbidden"
	}
	return "unauthenticated"
}

func Unauthenticated() error {
	return &AuthError{Message: "authenticated operator session required"}
}

func Forbidden(message string) error {
	return &AuthError{Message: message, Forbidden: true}
}

// StorageError wraps a failed persistence call. The wrapped error is kept for errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StorageError
	if errors.As(err, &existing) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

var (
	ErrCouponInvalid            = errors.New("coupon is invalid or expired")
	ErrCouponExhausted          = errors.New("coupon usage limit reached")
	ErrCouponMinimumNotMet      = errors.New("coupon minimum purchase not met")
	ErrCouponBirthdayRestricted = errors.New("coupon is restricted to the customer's birthday month")
)

// CouponError reports why a coupon code could not be applied. Reason is one of the ErrCoupon* sentinels.
type CouponError struct {
	Code   string
	Reason error
	Detail string
}

func (e *CouponError) Error() string {
	msg := e.Reason.Error()
	if e.Detail != "" {
		msg = msg + " (" + e.Detail + ")"
	}
	if e.Code != "" {
		return fmt.Sprintf("coupon %s: %s", e.Code, msg)
	}
	return msg
}

func (e *CouponError) Is(target error) bool {
	return target == e.Reason
}

func Coupon(code string, reason error, detail string) error {
	return &CouponError{Code: code, Reason: reason, Detail: detail}
}

// TransitionError is returned when a sale is not in the status a workflow step requires.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}
