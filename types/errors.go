package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceErrorKind classifies failures at the embedding/completion
// service boundary, decoupled from any provider's status-code scheme.
type ServiceErrorKind string

const (
	KindUnauthorized   ServiceErrorKind = "unauthorized"
	KindQuotaExhausted ServiceErrorKind = "quota_exhausted"
	KindNotFound       ServiceErrorKind = "not_found"
	KindRateLimited    ServiceErrorKind = "rate_limited"
	KindOverloaded     ServiceErrorKind = "overloaded"
	KindOther          ServiceErrorKind = "other"
)

// KindFromStatus translates a provider HTTP status into a kind.
func KindFromStatus(status int) ServiceErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusPaymentRequired:
		return KindQuotaExhausted
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindOverloaded
	default:
		return KindOther
	}
}

// ServiceError is a structured failure from an external model service.
type ServiceError struct {
	Kind    ServiceErrorKind
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("model service: %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("model service: %s: %s", e.Kind, e.Message)
}

func NewServiceError(status int, message string) *ServiceError {
	return &ServiceError{
		Kind:    KindFromStatus(status),
		Status:  status,
		Message: message,
	}
}

// InputError marks invalid caller input, surfaced verbatim.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func NewInputError(format string, args ...any) *InputError {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError marks a missing chunk id or source name.
type NotFoundError struct {
	Resource string
	Ref      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Ref)
}

func NewNotFoundError(resource, ref string) *NotFoundError {
	return &NotFoundError{Resource: resource, Ref: ref}
}

// StoreUnavailableError wraps a persistence backend failure. The
// retrieval path treats it as "no context available"; admin operations
// surface it directly.
type StoreUnavailableError struct {
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("document store unavailable: %v", e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
