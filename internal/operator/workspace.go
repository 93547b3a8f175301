package operator

import (
	"sync"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"github.com/kursadbilgin/sms-dispatch/internal/selection"
)

// Workspace is the operator's current dataset, its selection and the last
// dispatch result for it. Loading a dataset replaces all three together.
type Workspace struct {
	mu        sync.Mutex
	selection *selection.Manager
	result    *domain.DispatchResult
}

func NewWorkspace(counter selection.SlotCounter) *Workspace {
	return &Workspace{selection: selection.NewManager(counter)}
}

// Load installs rows as a new dataset with a fresh identity.
func (w *Workspace) Load(name string, rows []domain.Row) *selection.Dataset {
	dataset := selection.NewDataset(name, rows)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.selection.Reset(dataset)
	w.result = nil
	return dataset
}

func (w *Workspace) Selection() *selection.Manager {
	return w.selection
}

func (w *Workspace) Dataset() *selection.Dataset {
	return w.selection.Dataset()
}

// Hold keeps result if it still belongs to the current dataset.
func (w *Workspace) Hold(result *domain.DispatchResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if result == nil {
		return nil
	}
	if result.DatasetID != w.selection.Dataset().ID() {
		return domain.ErrStaleResult
	}
	w.result = result
	return nil
}

// Result returns the held dispatch result, if any.
func (w *Workspace) Result() (*domain.DispatchResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.result != nil
}

// IsCurrent reports whether result may still be acted on. Results that are
// not tied to a dataset, like manual sends and resends, are always current.
func (w *Workspace) IsCurrent(result *domain.DispatchResult) bool {
	if result == nil {
		return false
	}
	if result.DatasetID == "" {
		return true
	}
	return result.DatasetID == w.selection.Dataset().ID()
}

// UploadName returns the upload name result belongs to, checked against the
// current dataset in the same read.
func (w *Workspace) UploadName(result *domain.DispatchResult) (string, error) {
	if result == nil {
		return "", domain.ErrStaleResult
	}
	if result.DatasetID == "" {
		return manualUploadName, nil
	}
	dataset := w.selection.Dataset()
	if result.DatasetID != dataset.ID() {
		return "", domain.ErrStaleResult
	}
	return dataset.Name(), nil
}
