package selection

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
)

// SlotCounter reports how many phone slots of a row are filled.
type SlotCounter interface {
	CountSlots(row domain.Row) int
}

// Manager holds the set of selected row indices for the current dataset.
// Every index it holds is inside the dataset's range.
type Manager struct {
	mu       sync.RWMutex
	dataset  *Dataset
	selected map[int]struct{}
	counter  SlotCounter
}

func NewManager(counter SlotCounter) *Manager {
	return &Manager{
		selected: make(map[int]struct{}),
		counter:  counter,
	}
}

// Reset swaps the dataset and clears the selection.
func (m *Manager) Reset(dataset *Dataset) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dataset = dataset
	m.selected = make(map[int]struct{})
}

func (m *Manager) Dataset() *Dataset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dataset
}

// Toggle flips the selection of one row and reports whether it is now selected.
func (m *Manager) Toggle(index int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkIndex(index); err != nil {
		return false, err
	}
	if _, ok := m.selected[index]; ok {
		delete(m.selected, index)
		return false, nil
	}
	m.selected[index] = struct{}{}
	return true, nil
}

// Select replaces the selection with the given indices. Nothing changes if any index is invalid.
func (m *Manager) Select(indices []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[int]struct{}, len(indices))
	for _, index := range indices {
		if err := m.checkIndex(index); err != nil {
			return err
		}
		next[index] = struct{}{}
	}
	m.selected = next
	return nil
}

func (m *Manager) SelectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.dataset.Len()
	next := make(map[int]struct{}, n)
	for i := 0; i < n; i++ {
		next[i] = struct{}{}
	}
	m.selected = next
}

func (m *Manager) SelectNone() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.selected = make(map[int]struct{})
}

func (m *Manager) IsSelected(index int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.selected[index]
	return ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.selected)
}

// SelectedIndices returns the selection in ascending order.
func (m *Manager) SelectedIndices() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked()
}

// DerivedRecipientCount sums populated phone slots across selected rows.
// Duplicates are not removed; the count is for operator display.
func (m *Manager) DerivedRecipientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.counter == nil {
		return 0
	}
	total := 0
	for index := range m.selected {
		if row, ok := m.dataset.Row(index); ok {
			total += m.counter.CountSlots(row)
		}
	}
	return total
}

// Snapshot returns the dataset and its selection read under one lock.
func (m *Manager) Snapshot() (*Dataset, []int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dataset, m.sortedLocked()
}

func (m *Manager) sortedLocked() []int {
	indices := make([]int, 0, len(m.selected))
	for index := range m.selected {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

func (m *Manager) checkIndex(index int) error {
	if index < 0 || index >= m.dataset.Len() {
		return fmt.Errorf("%w: row index %d out of range [0,%d)", domain.ErrInvalidSelection, index, m.dataset.Len())
	}
	return nil
}
