package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Row is one record of an uploaded dataset, keyed by column name.
type Row map[string]any

// Field returns the trimmed textual value of a column, or "" when absent.
func (r Row) Field(name string) string {
	if r == nil {
		return ""
	}
	value, ok := r[name]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(stringify(value))
}

// Clone returns a shallow copy so callers cannot mutate a loaded dataset.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		// Spreadsheets hand phone numbers over as floats.
		if !math.IsInf(v, 0) && !math.IsNaN(v) && v == math.Trunc(v) {
			return strconv.FormatFloat(v, 'f', 0, 64)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return stringify(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// Role tags which slot of a row a recipient came from.
type Role string

const (
	RoleStudent  Role = "student"
	RoleGuardian Role = "guardian"
	RoleManual   Role = "manual"
)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleGuardian, RoleManual:
		return true
	}
	return false
}

func ParseRoleFromString(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.IsValid() {
		return "", fmt.Errorf("%w: invalid role %q", ErrValidation, s)
	}
	return role, nil
}

// ManualRowIndex marks recipients that were typed in rather than derived from a row.
const ManualRowIndex = -1

// Recipient is one phone target derived from a row for a single dispatch batch.
type Recipient struct {
	RowIndex         int
	Role             Role
	RawNumber        string
	NormalizedNumber string
	Message          string
	Invalid          bool
}

// RecipientKey identifies a recipient inside one batch.
type RecipientKey struct {
	RowIndex         int
	Role             Role
	NormalizedNumber string
}

func (r Recipient) Key() RecipientKey {
	return RecipientKey{
		RowIndex:         r.RowIndex,
		Role:             r.Role,
		NormalizedNumber: r.NormalizedNumber,
	}
}

// Reason codes attached to failed or skipped recipients.
const (
	ReasonInvalidNumber   = "invalid_number"
	ReasonEmptyMessage    = "empty_message"
	ReasonDuplicate       = "duplicate"
	ReasonGatewayRejected = "gateway_rejected"
	ReasonTransport       = "transport_error"
)

// ReasonResolveNotRecorded marks a resend that was delivered while its
// failure record could not be resolved; the record stays pending.
const ReasonResolveNotRecorded = "resolve_not_recorded"

// SkippedRecipient is a recipient dropped before submission; it is not counted.
type SkippedRecipient struct {
	Recipient Recipient
	Reason    string
}
