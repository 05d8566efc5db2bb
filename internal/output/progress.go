package output

import (
	"fmt"

	"github.com/cachefang/cachefang/internal/core"
)

// ProgressRenderer consumes the engine's progress stream and drives the
// progress bar. The bar is rebased whenever the scan enters a new phase or
// moves to a new target.
type ProgressRenderer struct {
	bar       *ProgressBar
	lastPhase core.Phase
	lastTotal int
	target    string
}

// NewProgressRenderer creates a renderer around a fresh bar. When silent is
// true the renderer is a no-op.
func NewProgressRenderer(silent bool) *ProgressRenderer {
	if silent {
		return &ProgressRenderer{}
	}
	return &ProgressRenderer{bar: NewProgressBar(0, 30)}
}

// Run drains events until the channel closes. Intended to run in its own
// goroutine alongside the engine.
func (r *ProgressRenderer) Run(events <-chan core.ProgressEvent) {
	if r.bar == nil {
		for range events {
		}
		return
	}

	r.bar.Start()
	defer r.bar.Stop()

	for ev := range events {
		if ev.Phase != r.lastPhase || ev.Target != r.target || ev.Total != r.lastTotal {
			r.lastPhase = ev.Phase
			r.lastTotal = ev.Total
			r.target = ev.Target
			r.bar.SetTotalAndReset(ev.Total)
			r.bar.SetPrefix(fmt.Sprintf("%s [%s] ", ev.Target, ev.Phase))
		}
		r.bar.Update(ev.Completed)
	}
}
