package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cachefang/cachefang/internal/utils"
)

// ProgressBar renders an in-place spinner bar with percentage, elapsed time
// and ETA on stderr. It cooperates with the logger via the log callbacks so
// log lines push the bar down instead of overwriting it. On a non-terminal
// stderr the bar stays silent and only the data updates happen.
type ProgressBar struct {
	mu           sync.Mutex
	total        int
	current      int
	width        int
	refresh      time.Duration
	startTime    time.Time
	done         chan struct{}
	writer       io.Writer
	isActive     bool
	spinner      int
	spinnerChars []string
	prefix       string
	suffix       string
	isTerminal   bool
	renderPaused bool
	renderReq    chan struct{}
}

// NewProgressBar creates a bar with the given total and bar width.
func NewProgressBar(total int, width int) *ProgressBar {
	return &ProgressBar{
		total:        total,
		width:        width,
		refresh:      250 * time.Millisecond,
		done:         make(chan struct{}),
		writer:       os.Stderr,
		spinnerChars: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		isTerminal:   utils.IsTerminal(os.Stderr.Fd()),
		renderReq:    make(chan struct{}, 1),
	}
}

// Start activates the bar: registers the log callbacks and spawns the
// refresh loop. No-op on a non-terminal stderr.
func (pb *ProgressBar) Start() {
	pb.mu.Lock()
	if pb.isActive {
		pb.mu.Unlock()
		return
	}
	pb.startTime = time.Now()
	pb.isActive = true
	pb.mu.Unlock()

	if !pb.isTerminal {
		return
	}

	utils.RegisterLogCallbacks(pb.MoveForLog, pb.ShowAfterLog)
	GetTerminalController().SetProgressBarActive(true)

	go pb.renderLoop()
	pb.requestRender()
}

// Stop deactivates the bar, unregisters the log callbacks and clears the
// line.
func (pb *ProgressBar) Stop() {
	pb.mu.Lock()
	if !pb.isActive {
		pb.mu.Unlock()
		return
	}
	pb.isActive = false
	close(pb.done)
	pb.mu.Unlock()

	utils.UnregisterLogCallbacks()
	GetTerminalController().SetProgressBarActive(false)

	if pb.isTerminal {
		tc := GetTerminalController()
		tc.BeginOutput()
		fmt.Fprint(pb.writer, "\033[2K\r")
		tc.EndOutput()
	}
}

// Update sets the completed count.
func (pb *ProgressBar) Update(current int) {
	pb.mu.Lock()
	pb.current = current
	pb.mu.Unlock()
	pb.requestRender()
}

// SetPrefix sets the text rendered before the spinner.
func (pb *ProgressBar) SetPrefix(prefix string) {
	pb.mu.Lock()
	pb.prefix = prefix
	pb.mu.Unlock()
	pb.requestRender()
}

// SetSuffix sets the text rendered after the ETA.
func (pb *ProgressBar) SetSuffix(suffix string) {
	pb.mu.Lock()
	pb.suffix = suffix
	pb.mu.Unlock()
}

// SetTotalAndReset rebases the bar on a new total, zeroing the count and
// restarting the ETA clock. Used when the scan moves to a new phase.
func (pb *ProgressBar) SetTotalAndReset(newTotal int) {
	pb.mu.Lock()
	pb.total = newTotal
	pb.current = 0
	pb.startTime = time.Now()
	pb.mu.Unlock()
	pb.requestRender()
}

func (pb *ProgressBar) renderLoop() {
	ticker := time.NewTicker(pb.refresh)
	defer ticker.Stop()
	for {
		select {
		case <-pb.done:
			return
		case <-pb.renderReq:
			pb.render()
		case <-ticker.C:
			pb.render()
		}
	}
}

func (pb *ProgressBar) requestRender() {
	pb.mu.Lock()
	wantRender := pb.isActive && !pb.renderPaused && pb.isTerminal
	pb.mu.Unlock()
	if !wantRender {
		return
	}
	select {
	case pb.renderReq <- struct{}{}:
	default:
	}
}

func (pb *ProgressBar) render() {
	pb.mu.Lock()
	if !pb.isActive || !pb.isTerminal || pb.renderPaused {
		pb.mu.Unlock()
		return
	}

	pb.spinner = (pb.spinner + 1) % len(pb.spinnerChars)

	total, current := pb.total, pb.current
	percent := 0.0
	if total > 0 {
		percent = float64(current) / float64(total) * 100
	}

	elapsed := time.Since(pb.startTime)
	var etaStr string
	switch {
	case current > 0 && current < total:
		eta := time.Duration(float64(elapsed) * float64(total-current) / float64(current))
		etaStr = formatDuration(eta)
	case current >= total && total > 0:
		etaStr = "Done"
	default:
		etaStr = "N/A"
	}

	completedWidth := 0
	if total > 0 {
		completedWidth = int(float64(pb.width) * float64(current) / float64(total))
	}
	if completedWidth > pb.width {
		completedWidth = pb.width
	}
	if completedWidth < 0 {
		completedWidth = 0
	}
	bar := strings.Repeat("█", completedWidth) + strings.Repeat("░", pb.width-completedWidth)

	status := fmt.Sprintf("%s%s [%s] %d/%d (%.1f%%) | Elapsed: %s | ETA: %s %s",
		pb.prefix, pb.spinnerChars[pb.spinner], bar,
		current, total, percent, formatDuration(elapsed), etaStr, pb.suffix)
	pb.mu.Unlock()

	tc := GetTerminalController()
	tc.BeginOutput()
	fmt.Fprint(pb.writer, "\033[2K\r"+status)
	tc.EndOutput()
}

// MoveForLog runs before every log line: pauses rendering and clears the bar
// so the log prints on a clean line.
func (pb *ProgressBar) MoveForLog() {
	pb.mu.Lock()
	active := pb.isActive && pb.isTerminal
	pb.renderPaused = true
	pb.mu.Unlock()

	if !active {
		return
	}
	select {
	case <-pb.renderReq:
	default:
	}
	tc := GetTerminalController()
	tc.BeginOutput()
	fmt.Fprint(pb.writer, "\033[2K\r")
	tc.EndOutput()
}

// ShowAfterLog runs after every log line: resumes rendering and redraws.
func (pb *ProgressBar) ShowAfterLog() {
	pb.mu.Lock()
	pb.renderPaused = false
	pb.mu.Unlock()
	pb.requestRender()
}

func (pb *ProgressBar) IsTerminal() bool {
	return pb.isTerminal
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	s := d.Seconds()
	if s < 0 {
		s = 0
	}
	if s < 60 {
		return fmt.Sprintf("%.0fs", s)
	}
	m := int(s/60) % 60
	h := int(s / 3600)
	rem := int(s) % 60
	if h < 1 {
		return fmt.Sprintf("%dm%02ds", m, rem)
	}
	return fmt.Sprintf("%dh%02dm%02ds", h, m, rem)
}
