package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScanSession is the process-wide aggregation of results for one invocation.
// It is the only structure mutated by multiple workers; every append takes
// the lock so records land atomically and none are lost.
type ScanSession struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	mu      sync.Mutex
	results []*TargetResult
}

// NewScanSession creates a session stamped with a fresh ID and start time.
func NewScanSession() *ScanSession {
	return &ScanSession{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
	}
}

// Append records a finished target result.
func (s *ScanSession) Append(res *TargetResult) {
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
}

// Results returns a copy of the per-target results collected so far.
func (s *ScanSession) Results() []*TargetResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*TargetResult, len(s.results))
	copy(out, s.results)
	return out
}

// Close stamps the end time. Results remain readable afterwards.
func (s *ScanSession) Close() {
	s.mu.Lock()
	s.EndTime = time.Now()
	s.mu.Unlock()
}

// Duration returns the wall-clock span of the session so far.
func (s *ScanSession) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// TotalVulnerabilities counts confirmed vulnerabilities across all targets.
func (s *ScanSession) TotalVulnerabilities() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.results {
		n += len(r.Vulnerabilities)
	}
	return n
}

// findingSink collects candidate findings from concurrent test workers.
type findingSink struct {
	mu       sync.Mutex
	findings []Finding
}

func (fs *findingSink) add(f Finding) {
	fs.mu.Lock()
	fs.findings = append(fs.findings, f)
	fs.mu.Unlock()
}

func (fs *findingSink) all() []Finding {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make([]Finding, len(fs.findings))
	copy(out, fs.findings)
	return out
}
