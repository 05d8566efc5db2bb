package core

import (
	"time"

	"github.com/cachefang/cachefang/internal/config"
	"github.com/cachefang/cachefang/internal/networking"
)

// PayloadCategory names the class of header mutation a payload performs.
type PayloadCategory string

const (
	CategoryHostHeader     PayloadCategory = "host-header"
	CategoryForwardedProto PayloadCategory = "forwarded-proto"
	CategoryCacheBuster    PayloadCategory = "cache-buster"
	CategoryPathOverride   PayloadCategory = "path-override"
	CategoryCustom         PayloadCategory = "custom"
)

// Payload is a single header mutation to test. One header per payload, never
// a compound mutation, so a finding is always attributable to one cause.
type Payload struct {
	HeaderName  string          `json:"header_name"`
	HeaderValue string          `json:"header_value"`
	Category    PayloadCategory `json:"category"`
	Tier        config.Mode     `json:"risk_tier"`
}

// EndpointSource records how an endpoint entered the candidate set.
type EndpointSource string

const (
	SourceSeed    EndpointSource = "seed"
	SourceCrawled EndpointSource = "crawled"
)

// Endpoint is a discovered URL plus discovery metadata. Immutable once added.
type Endpoint struct {
	URL    string         `json:"url"`
	Source EndpointSource `json:"source"`
	Depth  int            `json:"depth"`
}

// ReflectionKind classifies where and how precisely the payload value came
// back in the poisoned response. It drives both confidence and severity.
type ReflectionKind string

const (
	ReflectionNone          ReflectionKind = "none"
	ReflectionBodyExact     ReflectionKind = "body-exact"
	ReflectionHeaderExact   ReflectionKind = "header-exact"
	ReflectionPartial       ReflectionKind = "partial"
	ReflectionHeaderChanged ReflectionKind = "header-changed"
)

// Finding is a candidate cache-poisoning result awaiting verification.
// Created by the CacheTester, owned exclusively until handed to the Verifier.
type Finding struct {
	Endpoint   Endpoint                `json:"endpoint"`
	Payload    Payload                 `json:"payload"`
	Baseline   *networking.ProbeResult `json:"-"`
	Poisoned   *networking.ProbeResult `json:"-"`
	Reflection ReflectionKind          `json:"reflection"`
	Evidence   string                  `json:"evidence,omitempty"`
	Confidence float64                 `json:"confidence"`
}

// Severity grades a confirmed vulnerability.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Vulnerability is a verified finding. Terminal record; immutable once
// appended to a target's result set.
type Vulnerability struct {
	Finding         Finding                   `json:"finding"`
	Attempts        []*networking.ProbeResult `json:"-"`
	AttemptCount    int                       `json:"verification_attempts"`
	ConfirmedCount  int                       `json:"confirmed_attempts"`
	Reproducibility float64                   `json:"reproducibility_ratio"`
	Severity        Severity                  `json:"severity"`
}

// TargetStatus is the per-target outcome recorded in the session summary.
type TargetStatus string

const (
	StatusCompleted   TargetStatus = "completed"
	StatusUnreachable TargetStatus = "unreachable"
	StatusAborted     TargetStatus = "aborted"
)

// TargetStats carries the summary counters for one target.
type TargetStats struct {
	EndpointsDiscovered int           `json:"endpoints_discovered"`
	TestsRun            int           `json:"tests_run"`
	Duration            time.Duration `json:"duration"`
	ProbeErrors         int           `json:"probe_errors"`
}

// TargetResult aggregates the confirmed vulnerabilities and stats for one
// target.
type TargetResult struct {
	Target          string          `json:"target"`
	Status          TargetStatus    `json:"status"`
	Vulnerabilities []Vulnerability `json:"vulnerabilities"`
	Stats           TargetStats     `json:"stats"`
}
