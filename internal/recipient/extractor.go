package recipient

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

// FieldMapping names the dataset columns the extractor reads.
type FieldMapping struct {
	Student  string
	Guardian string
	Message  string
}

func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		Student:  "Student Phone No",
		Guardian: "Guardian Phone No",
		Message:  "Result",
	}
}

func (m FieldMapping) Validate() error {
	if strings.TrimSpace(m.Student) == "" || strings.TrimSpace(m.Guardian) == "" {
		return fmt.Errorf("%w: student and guardian phone fields are required", domain.ErrValidation)
	}
	if strings.TrimSpace(m.Message) == "" {
		return fmt.Errorf("%w: message field is required", domain.ErrValidation)
	}
	return nil
}

type slot struct {
	role  domain.Role
	field string
}

// slots are ordered: student before guardian.
func (m FieldMapping) slots() []slot {
	return []slot{
		{role: domain.RoleStudent, field: m.Student},
		{role: domain.RoleGuardian, field: m.Guardian},
	}
}

// Extractor derives role-tagged recipients from rows. It holds no state
// between calls, so edits to rows show up on the next extraction.
type Extractor struct {
	mapping    FieldMapping
	normalizer Normalizer
}

func NewExtractor(mapping FieldMapping, normalizer Normalizer) (*Extractor, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}
	return &Extractor{mapping: mapping, normalizer: normalizer}, nil
}

// FromRow yields zero, one or two recipients for a row.
func (e *Extractor) FromRow(index int, row domain.Row) []domain.Recipient {
	message := row.Field(e.mapping.Message)

	recipients := make([]domain.Recipient, 0, 2)
	for _, s := range e.mapping.slots() {
		raw := row.Field(s.field)
		if raw == "" {
			continue
		}
		recipients = append(recipients, e.build(index, s.role, raw, message))
	}
	return recipients
}

// CountSlots reports how many phone slots of a row are populated.
func (e *Extractor) CountSlots(row domain.Row) int {
	count := 0
	for _, s := range e.mapping.slots() {
		if row.Field(s.field) != "" {
			count++
		}
	}
	return count
}

// Extract builds the deduplicated recipient list for the given row indices.
// Indices are visited in ascending order; out-of-range indices are rejected.
func (e *Extractor) Extract(rows []domain.Row, indices []int) ([]domain.Recipient, []domain.SkippedRecipient, error) {
	ordered := append([]int(nil), indices...)
	sort.Ints(ordered)

	all := make([]domain.Recipient, 0, len(ordered)*2)
	last := -1
	for _, index := range ordered {
		if index < 0 || index >= len(rows) {
			return nil, nil, fmt.Errorf("%w: row index %d out of range [0,%d)", domain.ErrInvalidSelection, index, len(rows))
		}
		if index == last {
			continue
		}
		last = index
		all = append(all, e.FromRow(index, rows[index])...)
	}

	kept, skipped := Dedupe(all)
	return kept, skipped, nil
}

// FromNumbers builds recipients for a manual send sharing one message.
func (e *Extractor) FromNumbers(numbers []string, message string) ([]domain.Recipient, []domain.SkippedRecipient) {
	all := make([]domain.Recipient, 0, len(numbers))
	for _, raw := range numbers {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		all = append(all, e.build(domain.ManualRowIndex, domain.RoleManual, raw, strings.TrimSpace(message)))
	}
	return Dedupe(all)
}

func (e *Extractor) build(index int, role domain.Role, raw string, message string) domain.Recipient {
	normalized, valid := e.normalizer.Normalize(raw)
	return domain.Recipient{
		RowIndex:         index,
		Role:             role,
		RawNumber:        raw,
		NormalizedNumber: normalized,
		Message:          message,
		Invalid:          !valid,
	}
}

// Dedupe keeps the first recipient per normalized number and reports the rest as skipped.
func Dedupe(recipients []domain.Recipient) ([]domain.Recipient, []domain.SkippedRecipient) {
	seen := make(map[string]struct{}, len(recipients))
	kept := make([]domain.Recipient, 0, len(recipients))
	var skipped []domain.SkippedRecipient

	for _, r := range recipients {
		key := r.NormalizedNumber
		if key == "" {
			key = "raw:" + r.RawNumber
		}
		if _, dup := seen[key]; dup {
			skipped = append(skipped, domain.SkippedRecipient{Recipient: r, Reason: domain.ReasonDuplicate})
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, r)
	}
	return kept, skipped
}
