package operator

import (
	"fmt"

	"github.com/kursadbilgin/sms-dispatch/internal/domain"
	"golang.org/x/sync/semaphore"
)

// Kind names an operation that may have at most one call outstanding.
type Kind string

const (
	KindUpload   Kind = "upload"
	KindDispatch Kind = "dispatch"
	KindManual   Kind = "manual"
	KindResend   Kind = "resend"
	KindExport   Kind = "export"
)

func (k Kind) String() string { return string(k) }

// Guards is a single-flight gate per operation kind. Different kinds do not
// block each other.
type Guards struct {
	gates map[Kind]*semaphore.Weighted
}

func NewGuards() *Guards {
	kinds := []Kind{KindUpload, KindDispatch, KindManual, KindResend, KindExport}
	gates := make(map[Kind]*semaphore.Weighted, len(kinds))
	for _, kind := range kinds {
		gates[kind] = semaphore.NewWeighted(1)
	}
	return &Guards{gates: gates}
}

// Acquire enters kind or fails immediately with ErrOperationInFlight.
// The returned release must be called exactly once.
func (g *Guards) Acquire(kind Kind) (func(), error) {
	gate, ok := g.gates[kind]
	if !ok {
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
	if !gate.TryAcquire(1) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOperationInFlight, kind)
	}
	return func() { gate.Release(1) }, nil
}
