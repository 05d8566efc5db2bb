package output

import (
	"fmt"
	"os"
	"sync"

	"github.com/cachefang/cachefang/internal/utils"
)

// TerminalController serializes writes to the terminal so the progress bar
// and log lines never interleave on the same line.
type TerminalController struct {
	mu             sync.Mutex
	outputMu       sync.Mutex
	isTerminal     bool
	hasProgressBar bool
}

var (
	terminalController *TerminalController
	once               sync.Once
)

// GetTerminalController returns the process-wide controller.
func GetTerminalController() *TerminalController {
	once.Do(func() {
		terminalController = &TerminalController{
			isTerminal: utils.IsTerminal(os.Stderr.Fd()),
		}
	})
	return terminalController
}

func (tc *TerminalController) BeginOutput() {
	tc.outputMu.Lock()
}

func (tc *TerminalController) EndOutput() {
	tc.outputMu.Unlock()
}

func (tc *TerminalController) SetProgressBarActive(active bool) {
	tc.mu.Lock()
	tc.hasProgressBar = active
	tc.mu.Unlock()
}

func (tc *TerminalController) HasProgressBar() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.hasProgressBar
}

// ClearLine erases the current terminal line when output is a terminal.
func (tc *TerminalController) ClearLine() {
	if tc.isTerminal {
		fmt.Fprint(os.Stderr, "\033[2K\r")
	}
}

func (tc *TerminalController) IsTerminal() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.isTerminal
}
