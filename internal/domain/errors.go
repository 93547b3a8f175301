package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// Operator input errors. They are detected before any network call.
var (
	ErrEmptySelection       = fmt.Errorf("%w: empty selection", ErrValidation)
	ErrEmptyResendSelection = fmt.Errorf("%w: empty resend selection", ErrValidation)
	ErrInvalidSelection     = fmt.Errorf("%w: invalid selection", ErrValidation)
	ErrAlreadyResolved      = fmt.Errorf("%w: already resolved", ErrConflict)
	ErrResendInProgress     = fmt.Errorf("%w: resend already in progress", ErrConflict)
	ErrNothingToExport      = fmt.Errorf("%w: nothing to export", ErrValidation)
)

var (
	// ErrProtocolMismatch means a collaborator response violated the partition contract.
	ErrProtocolMismatch  = errors.New("protocol mismatch")
	ErrTransport         = errors.New("transport failure")
	ErrOperationInFlight = errors.New("operation already in flight")
	ErrStaleResult       = errors.New("dispatch result belongs to a superseded dataset")
	ErrUnauthorized      = errors.New("unauthorized")
)

// AlreadyResolvedError lists the failure records rejected because they are resolved.
type AlreadyResolvedError struct {
	IDs []int64
}

func NewAlreadyResolvedError(ids []int64) *AlreadyResolvedError {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return &AlreadyResolvedError{IDs: sorted}
}

func (e *AlreadyResolvedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, len(e.IDs))
	for _, id := range e.IDs {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("%s: ids [%s]", ErrAlreadyResolved.Error(), strings.Join(parts, ", "))
}

func (e *AlreadyResolvedError) Unwrap() error {
	return ErrAlreadyResolved
}
