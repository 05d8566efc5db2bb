package core

// Phase identifies the pipeline stage a progress event belongs to.
type Phase string

const (
	PhaseValidating  Phase = "validating"
	PhaseDiscovering Phase = "discovering"
	PhaseTesting     Phase = "testing"
	PhaseVerifying   Phase = "verifying"
	PhaseReporting   Phase = "reporting"
)

// ProgressEvent is a structured progress update emitted by the engine. An
// external presentation layer renders these as progress bars or log lines;
// the engine never formats text for display and never blocks on a consumer.
type ProgressEvent struct {
	Target    string
	Phase     Phase
	Completed int
	Total     int
	Message   string
}

// progressEmitter fans events into a buffered channel, dropping on overflow
// so a slow or absent consumer can never stall probe workers.
type progressEmitter struct {
	events chan ProgressEvent
}

func newProgressEmitter(buffer int) *progressEmitter {
	return &progressEmitter{events: make(chan ProgressEvent, buffer)}
}

func (p *progressEmitter) emit(ev ProgressEvent) {
	select {
	case p.events <- ev:
	default:
	}
}

func (p *progressEmitter) close() {
	close(p.events)
}
