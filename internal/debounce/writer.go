// Package debounce coalesces rapid field edits into one merge-write per
// record once edits go quiet.
package debounce

import (
	"slices"
	"sync"
	"time"

	"github.com/soyeahso/roster/internal/clock"
	"github.com/soyeahso/roster/internal/domain"
	"github.com/soyeahso/roster/internal/logging"
)

// DefaultInterval is the quiescence window used when none is configured.
const DefaultInterval = 800 * time.Millisecond

// Sink receives one coalesced patch. It runs outside the writer's lock, on
// the timer goroutine or the caller of Flush.
type Sink func(id string, patch domain.Patch)

type pending struct {
	patch domain.Patch
	timer *clock.Timer
	gen   uint64
}

// Writer holds at most one pending patch and one timer per record id.
type Writer struct {
	interval time.Duration
	clock    clock.Clock
	sink     Sink
	log      *logging.Logger

	mu      sync.Mutex
	pending map[string]*pending
	gen     uint64
}

// New creates a writer. A non-positive interval selects DefaultInterval and
// a nil clock selects the real one.
func New(interval time.Duration, clk clock.Clock, sink Sink, log *logging.Logger) *Writer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Writer{
		interval: interval,
		clock:    clk,
		sink:     sink,
		log:      log.Sub("debounce"),
		pending:  make(map[string]*pending),
	}
}

// Interval returns the quiescence window.
func (w *Writer) Interval() time.Duration { return w.interval }

// Schedule merges patch into the pending patch for id, later values winning
// per field, and restarts the quiescence timer for id.
func (w *Writer) Schedule(id string, patch domain.Patch) {
	if id == "" || len(patch) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	gen := w.gen
	p, ok := w.pending[id]
	if !ok {
		p = &pending{}
		w.pending[id] = p
	}
	p.patch = p.patch.Merge(patch)
	p.gen = gen
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = w.clock.AfterFunc(w.interval, func() { w.fire(id, gen) })

	w.log.Trace().Str("id", id).Int("fields", len(p.patch)).Msg("edit scheduled")
}

// fire flushes id if gen is still the latest schedule for it. A stale
// timer that lost a race with Schedule, Cancel or Flush does nothing.
func (w *Writer) fire(id string, gen uint64) {
	w.mu.Lock()
	p, ok := w.pending[id]
	if !ok || p.gen != gen {
		w.mu.Unlock()
		return
	}
	delete(w.pending, id)
	w.mu.Unlock()

	w.log.Debug().Str("id", id).Int("fields", len(p.patch)).Msg("flushing after quiescence")
	w.sink(id, p.patch)
}

// Cancel stops every pending timer and discards the pending patches.
func (w *Writer) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, id)
		w.log.Debug().Str("id", id).Msg("pending edit discarded")
	}
}

// Flush writes the pending patch for id immediately. It reports whether
// there was anything to write.
func (w *Writer) Flush(id string) bool {
	w.mu.Lock()
	p, ok := w.pending[id]
	if ok {
		p.timer.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()

	if !ok {
		return false
	}
	w.sink(id, p.patch)
	return true
}

// FlushAll writes every pending patch immediately, in id order, and returns
// the number of writes issued.
func (w *Writer) FlushAll() int {
	n := 0
	for _, id := range w.Pending() {
		if w.Flush(id) {
			n++
		}
	}
	return n
}

// Pending returns the ids with a pending patch, sorted.
func (w *Writer) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.pending))
	for id := range w.pending {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
