// Package errs defines the kernel's error taxonomy and its HTTP boundary mapping.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for kernel-mediated operations. Handlers at the HTTP
// boundary translate these to status codes via HTTPStatus; everything else
// wraps them with fmt.Errorf("%w").
var (
	ErrCapabilityDenied  = errors.New("capability denied")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrAppUnavailable    = errors.New("app unavailable")
	ErrNotFound          = errors.New("not found")
	ErrContractViolation = errors.New("contract violation")
	ErrNoHandler         = errors.New("no handler")
	ErrTimeout           = errors.New("timeout")
)

// CapabilityDenied returns a wrapped ErrCapabilityDenied for a missing token.
func CapabilityDenied(appID, capability string) error {
	return fmt.Errorf("%w: app %q lacks capability %q", ErrCapabilityDenied, appID, capability)
}

// QuotaExceeded returns a wrapped ErrQuotaExceeded for an exhausted resource.
func QuotaExceeded(appID, resource string, limit int) error {
	return fmt.Errorf("%w: app %q exhausted %q (limit %d)", ErrQuotaExceeded, appID, resource, limit)
}

// AppUnavailable returns a wrapped ErrAppUnavailable for a disabled app.
func AppUnavailable(appID string) error {
	return fmt.Errorf("%w: app %q is disabled", ErrAppUnavailable, appID)
}

// NotFound returns a wrapped ErrNotFound for a missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// ContractViolation returns a wrapped ErrContractViolation with detail.
func ContractViolation(eventType, detail string) error {
	return fmt.Errorf("%w: event %q: %s", ErrContractViolation, eventType, detail)
}

// NoHandler returns a wrapped ErrNoHandler for an unhandled event type.
func NoHandler(eventType string) error {
	return fmt.Errorf("%w: no subscriber for %q", ErrNoHandler, eventType)
}

// Timeout returns a wrapped ErrTimeout for an expired request.
func Timeout(eventType string) error {
	return fmt.Errorf("%w: request %q expired", ErrTimeout, eventType)
}

// HTTPStatus maps a kernel error to its boundary status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrCapabilityDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrAppUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrContractViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNoHandler):
		return http.StatusNotFound
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
