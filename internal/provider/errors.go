package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

// ProviderError is a gateway call that did not deliver a message. Transient
// means the gateway may never have seen the message; otherwise it answered
// and refused it.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("sms gateway")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether err is a timeout, a connection problem or a
// gateway overload rather than a refusal of the message itself.
func IsTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FailureReason maps a failed send to the reason code stored on the outcome.
func FailureReason(err error) string {
	if IsTransient(err) || errors.Is(err, context.Canceled) {
		return domain.ReasonTransport
	}
	return domain.ReasonGatewayRejected
}
