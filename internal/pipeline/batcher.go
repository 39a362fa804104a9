package pipeline

import (
	"time"

	"github.com/bscolinos/ford-fleet-streaming/internal/domain"
)

// Batcher accumulates decoded events and their derived anomalies until the
// size cap is hit or the batch has aged past the flush timeout. There is no
// timer goroutine: the flush condition is checked once per consumer poll
// cycle, so worst-case flush latency is poll interval + timeout.
type Batcher struct {
	maxSize int
	timeout time.Duration

	batch     domain.Batch
	lastFlush time.Time

	// now is swapped out in tests.
	now func() time.Time
}

func NewBatcher(maxSize int, timeout time.Duration) *Batcher {
	b := &Batcher{
		maxSize: maxSize,
		timeout: timeout,
		now:     time.Now,
	}
	b.lastFlush = b.now()
	return b
}

// Add appends one event and its anomalies to the in-flight batch.
func (b *Batcher) Add(e *domain.TelemetryEvent, anomalies []*domain.AnomalyRecord) {
	b.batch.Events = append(b.batch.Events, e)
	b.batch.Anomalies = append(b.batch.Anomalies, anomalies...)
}

// ShouldFlush reports whether the batch is due: full, or non-empty and older
// than the timeout.
func (b *Batcher) ShouldFlush() bool {
	if len(b.batch.Events) >= b.maxSize {
		return true
	}
	return !b.batch.Empty() && b.now().Sub(b.lastFlush) >= b.timeout
}

// Take hands the accumulated batch to the caller and resets the batcher.
// The returned batch is owned by the caller and never reused.
func (b *Batcher) Take() *domain.Batch {
	taken := b.batch
	b.batch = domain.Batch{}
	b.lastFlush = b.now()
	return &taken
}

// Len returns the number of accumulated events.
func (b *Batcher) Len() int {
	return len(b.batch.Events)
}
