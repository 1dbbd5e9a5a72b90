package errors

import "errors"

var ErrUnauthorized = errors.New("user is not authorized")
var ErrForbidden = errors.New("operation is forbidden for user")

var ErrNotFound = errors.New("resource not found")
var ErrInvalidQuantity = errors.New("quantity must be positive")

// Stock ledger
var ErrInsufficientStock = errors.New("not enough tickets available")

// Purchase validation, user-facing and not retryable
var ErrTicketTypeInactive = errors.New("ticket type is not active")
var ErrSaleWindowClosed = errors.New("ticket type is outside of its sale window")

// ErrPaymentMismatch is raised when a provider callback disagrees with the stored
// payment (amount or purchase reference). The payment is left as is for manual review.
var ErrPaymentMismatch = errors.New("payment does not match provider callback")

// ErrInvalidTransition is the shape of a duplicate or out-of-order callback.
var ErrInvalidTransition = errors.New("payment state transition not allowed")
var ErrReservationExpired = errors.New("reservation expired")

var ErrPurchaseNotCompleted = errors.New("purchase is not completed")
var ErrTicketAlreadyUsed = errors.New("ticket already used")

// ErrProviderUnavailable wraps a failed server-side call to the payment provider.
// Local state has already moved on; the failure is escalated, not rolled back.
var ErrProviderUnavailable = errors.New("payment provider call failed")
var ErrInvalidQRCode = errors.New("invalid ticket QR data")
