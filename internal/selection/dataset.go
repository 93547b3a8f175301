package selection

import (
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

// Dataset is an immutable set of uploaded rows with a stable identity.
type Dataset struct {
	id   string
	name string
	rows []domain.Row
}

func NewDataset(name string, rows []domain.Row) *Dataset {
	cloned := make([]domain.Row, len(rows))
	for i := range rows {
		cloned[i] = rows[i].Clone()
	}

	return &Dataset{
		id:   uuid.NewString(),
		name: strings.TrimSpace(name),
		rows: cloned,
	}
}

func (d *Dataset) ID() string {
	if d == nil {
		return ""
	}
	return d.id
}

// Name is the originating upload's file name.
func (d *Dataset) Name() string {
	if d == nil {
		return ""
	}
	return d.name
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.rows)
}

func (d *Dataset) Row(index int) (domain.Row, bool) {
	if d == nil || index < 0 || index >= len(d.rows) {
		return nil, false
	}
	return d.rows[index], true
}

// Rows returns the rows in index order. The slice is a copy; rows are shared.
func (d *Dataset) Rows() []domain.Row {
	if d == nil {
		return nil
	}
	return append([]domain.Row(nil), d.rows...)
}
