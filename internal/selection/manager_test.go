package selection

import (
	"errors"
	"testing"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

type fakeCounter struct{}

func (fakeCounter) CountSlots(row domain.Row) int {
	count := 0
	for _, field := range []string{"student", "guardian"} {
		if row.Field(field) != "" {
			count++
		}
	}
	return count
}

func threeRows() []domain.Row {
	return []domain.Row{
		{"student": "01700000001", "guardian": "01700000002"},
		{"student": "01700000001"},
		{},
	}
}

func TestManagerToggle(t *testing.T) {
	t.Parallel()

	m := NewManager(fakeCounter{})
	m.Reset(NewDataset("results.xlsx", threeRows()))

	selected, err := m.Toggle(1)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !selected || !m.IsSelected(1) {
		t.Fatal("row 1 should be selected after first toggle")
	}

	selected, err = m.Toggle(1)
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if selected || m.IsSelected(1) {
		t.Fatal("row 1 should be deselected after second toggle")
	}
}

func TestManagerToggleOutOfRange(t *testing.T) {
	t.Parallel()

	m := NewManager(fakeCounter{})
	m.Reset(NewDataset("results.xlsx", threeRows()))

	for _, index := range []int{-1, 3, 100} {
		if _, err := m.Toggle(index); !errors.Is(err, domain.ErrInvalidSelection) {
			t.Fatalf("Toggle(%d) error = %v, want ErrInvalidSelection", index, err)
		}
	}
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
}

func TestManagerSelectAllAndNone(t *testing.T) {
	t.Parallel()

	m := NewManager(fakeCounter{})
	m.Reset(NewDataset("results.xlsx", threeRows()))

	m.SelectAll()
	got := m.SelectedIndices()
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("SelectedIndices() = %v, want [0 1 2]", got)
	}
	if count := m.DerivedRecipientCount(); count != 3 {
		t.Fatalf("DerivedRecipientCount() = %d, want 3", count)
	}

	m.SelectNone()
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", m.Len())
	}
	if count := m.DerivedRecipientCount(); count != 0 {
		t.Fatalf("DerivedRecipientCount() = %d, want 0", count)
	}
}

func TestManagerSelectAllEmptyDatasetIsNoop(t *testing.T) {
	t.Parallel()

	m := NewManager(fakeCounter{})
	m.SelectAll()
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 without a dataset", m.Len())
	}

	m.Reset(NewDataset("empty.xlsx", nil))
	m.SelectAll()
	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 for empty dataset", m.Len())
	}
}

func TestManagerSelectIsAtomic(t *testing.T) {
	t.Parallel()

	m := NewManager(fakeCounter{})
	m.Reset(NewDataset("results.xlsx", threeRows()))

	if err := m.Select([]int{0, 2}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := m.Select([]int{1, 7}); !errors.Is(err, domain.ErrInvalidSelection) {
		t.Fatalf("Select() error = %v, want ErrInvalidSelection", err)
	}
	got := m.SelectedIndices()
	if len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Fatalf("SelectedIndices() = %v, want [0 2] after rejected Select", got)
	}
}

func TestManagerResetClearsSelection(t *testing.T) {
	t.Parallel()

	m := NewManager(fakeCounter{})
	first := NewDataset("results.xlsx", threeRows())
	m.Reset(first)
	m.SelectAll()

	second := NewDataset("results-v2.xlsx", threeRows()[:2])
	m.Reset(second)

	if m.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after dataset swap", m.Len())
	}
	if first.ID() == second.ID() {
		t.Fatal("datasets should have distinct identities")
	}
	dataset, indices := m.Snapshot()
	if dataset.ID() != second.ID() || len(indices) != 0 {
		t.Fatalf("Snapshot() = (%s, %v), want (%s, [])", dataset.ID(), indices, second.ID())
	}
}

func TestDatasetIsolatedFromCallerRows(t *testing.T) {
	t.Parallel()

	rows := threeRows()
	d := NewDataset(" results.xlsx ", rows)
	rows[0]["student"] = "changed"

	got, ok := d.Row(0)
	if !ok {
		t.Fatal("Row(0) should exist")
	}
	if got.Field("student") != "01700000001" {
		t.Fatalf("dataset row mutated through caller slice: %v", got)
	}
	if d.Name() != "results.xlsx" {
		t.Fatalf("Name() = %q, want %q", d.Name(), "results.xlsx")
	}
}
