package core

import (
	"context"
	"errors"
	"time"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/networking"
	"github.com/cachefang/cachefang/internal/utils"
)

// ScanEngine orchestrates the full pipeline for a list of targets: validate,
// discover, test, verify, aggregate. Targets run sequentially; concurrency
// lives inside the discovery and testing stages.
type ScanEngine struct {
	cfg      *config.Config
	client   *networking.Client
	logger   utils.Logger
	progress *progressEmitter
}

// NewEngine creates a ScanEngine.
func NewEngine(cfg *config.Config, client *networking.Client, logger utils.Logger) *ScanEngine {
	return &ScanEngine{
		cfg:      cfg,
		client:   client,
		logger:   logger,
		progress: newProgressEmitter(256),
	}
}

// Events exposes the engine's progress stream. The channel is buffered and
// events are dropped on overflow, so reading it is optional. It is closed
// when Run returns.
func (e *ScanEngine) Events() <-chan ProgressEvent {
	return e.progress.events
}

// Run scans every target in order and returns the aggregated session. A
// failing target never aborts the session; only a configuration defect
// (payload generation) does. Cancelling ctx stops the scan promptly, marks
// the in-flight target aborted, and preserves everything collected so far.
func (e *ScanEngine) Run(ctx context.Context, targets []string) (*ScanSession, error) {
	session := NewScanSession()
	defer session.Close()
	defer e.progress.close()

	e.logger.Infof("Starting scan session %s: %d target(s), %s", session.ID, len(targets), e.cfg)

	for _, raw := range targets {
		if ctx.Err() != nil {
			e.logger.Warnf("Scan cancelled before target %s", raw)
			break
		}

		result, err := e.scanTarget(ctx, raw)
		if err != nil {
			var genErr *GenerationError
			if errors.As(err, &genErr) {
				return session, err
			}
			// Unreachable or malformed target: record and move on.
			var valErr *ValidationError
			if errors.As(err, &valErr) {
				e.logger.Warnf("Skipping target: %v", valErr)
				session.Append(&TargetResult{Target: raw, Status: StatusUnreachable})
				continue
			}
			e.logger.Errorf("Target %s failed: %v", raw, err)
			session.Append(&TargetResult{Target: raw, Status: StatusUnreachable})
			continue
		}
		session.Append(result)
	}

	e.progress.emit(ProgressEvent{Phase: PhaseReporting, Completed: len(session.Results()), Total: len(targets)})
	e.logger.Infof("Scan session %s finished in %s: %d confirmed vulnerabilit(y/ies) across %d target(s)",
		session.ID, session.Duration().Round(time.Millisecond), session.TotalVulnerabilities(), len(session.Results()))
	return session, nil
}

// scanTarget runs the pipeline for one target. The returned result carries
// StatusAborted when ctx was cancelled mid-flight, with whatever was
// confirmed up to that point.
func (e *ScanEngine) scanTarget(ctx context.Context, raw string) (*TargetResult, error) {
	started := time.Now()

	target, err := e.validate(ctx, raw)
	if err != nil {
		return nil, err
	}

	payloads, err := GeneratePayloads(target, e.cfg.Mode)
	if err != nil {
		return nil, err
	}
	e.logger.Debugf("Generated %d payloads for %s (mode %s)", len(payloads), target, e.cfg.Mode)

	e.progress.emit(ProgressEvent{Target: target, Phase: PhaseDiscovering})
	discoverer := NewDiscoverer(e.client, e.cfg, e.logger)
	endpoints, err := discoverer.Discover(ctx, target, func(completed, total int) {
		e.progress.emit(ProgressEvent{Target: target, Phase: PhaseDiscovering, Completed: completed, Total: total})
	})
	if err != nil {
		return nil, err
	}

	e.progress.emit(ProgressEvent{Target: target, Phase: PhaseTesting, Total: len(endpoints) * len(payloads)})
	tester := NewCacheTester(e.client, e.cfg, e.logger)
	findings := tester.Test(ctx, endpoints, payloads, func(completed, total int) {
		e.progress.emit(ProgressEvent{Target: target, Phase: PhaseTesting, Completed: completed, Total: total})
	})
	e.logger.Infof("Testing for %s done: %d candidate finding(s) from %d test(s)", target, len(findings), tester.TestsRun())

	e.progress.emit(ProgressEvent{Target: target, Phase: PhaseVerifying, Total: len(findings)})
	verifier := NewVerifier(e.client, e.cfg, e.logger)
	var vulns []Vulnerability
	for i, finding := range findings {
		if ctx.Err() != nil {
			break
		}
		if vuln, ok := verifier.Verify(ctx, finding); ok {
			vulns = append(vulns, vuln)
		}
		e.progress.emit(ProgressEvent{Target: target, Phase: PhaseVerifying, Completed: i + 1, Total: len(findings)})
	}

	status := StatusCompleted
	if ctx.Err() != nil {
		status = StatusAborted
	}

	return &TargetResult{
		Target:          target,
		Status:          status,
		Vulnerabilities: vulns,
		Stats: TargetStats{
			EndpointsDiscovered: len(endpoints),
			TestsRun:            tester.TestsRun(),
			Duration:            time.Since(started),
			ProbeErrors:         tester.ProbeErrors(),
		},
	}, nil
}

// validate normalizes the target URL and confirms reachability with a single
// probe. Any HTTP response counts as reachable, whatever the status code;
// only transport failures do not. On a connection failure the opposite
// scheme is tried once before giving up, so bare hostnames that only speak
// http still resolve.
func (e *ScanEngine) validate(ctx context.Context, raw string) (string, error) {
	target := utils.EnsureScheme(raw)
	e.progress.emit(ProgressEvent{Target: target, Phase: PhaseValidating})

	if _, err := e.client.Probe(ctx, networking.ProbeRequest{URL: target}); err == nil {
		return target, nil
	} else if ctx.Err() != nil {
		return "", &ValidationError{Target: raw, Err: ctx.Err()}
	} else {
		fallback := utils.SwapScheme(target)
		if fallback != target {
			e.logger.Debugf("Validation of %s failed (%v), retrying as %s", target, err, fallback)
			if _, err2 := e.client.Probe(ctx, networking.ProbeRequest{URL: fallback}); err2 == nil {
				return fallback, nil
			}
		}
		return "", &ValidationError{Target: raw, Err: err}
	}
}
