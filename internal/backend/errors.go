package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/wire"
)

// APIError is a non-2xx answer from the dispatch API. The whole operation failed.
type APIError struct {
	StatusCode int
	Message    string
	// IDs is set when a resend was rejected because these records are resolved.
	IDs []int64
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		return fmt.Sprintf("dispatch api error: status=%d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("dispatch api error: status=%d", e.StatusCode)
}

// Unwrap maps the status code onto the domain error taxonomy.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.ErrValidation
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		if len(e.IDs) > 0 {
			return domain.ErrAlreadyResolved
		}
		return domain.ErrConflict
	default:
		return domain.ErrTransport
	}
}

func newAPIError(response *resty.Response) *APIError {
	body := strings.TrimSpace(response.String())

	var parsed wire.ErrorResponse
	if err := json.Unmarshal(response.Body(), &parsed); err == nil && strings.TrimSpace(parsed.Error) != "" {
		body = parsed.Error
	}

	return &APIError{
		StatusCode: response.StatusCode(),
		Message:    body,
		IDs:        parsed.IDs,
	}
}
