package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cachefang/cachefang/internal/core"
	"github.com/cachefang/cachefang/internal/utils"
)

// Reporter renders a finished scan session. It only reads the session: by the
// time a report is generated all scanning has stopped and the result set is
// final.
type Reporter struct {
	logger utils.Logger
}

// NewReporter creates a new Reporter.
func NewReporter(logger utils.Logger) *Reporter {
	return &Reporter{logger: logger}
}

// Generate writes the session in the requested format. An empty outputPath
// writes to stdout.
func (r *Reporter) Generate(session *core.ScanSession, outputPath, format string) error {
	var out io.Writer = os.Stdout
	if outputPath != "" {
		if err := utils.EnsureFilepathExists(outputPath); err != nil {
			return fmt.Errorf("failed to prepare report path: %w", err)
		}
		file, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer file.Close()
		out = file
	}

	var err error
	switch format {
	case "json":
		err = r.writeJSON(out, session)
	case "html":
		err = r.writeHTML(out, session)
	default:
		err = r.writeText(out, session)
	}
	if err != nil {
		return err
	}

	if outputPath != "" {
		r.logger.Infof("Report written to %s", outputPath)
	}
	return nil
}

// jsonReport is the stable top-level shape of the JSON output.
type jsonReport struct {
	SessionID            string               `json:"session_id"`
	StartTime            time.Time            `json:"start_time"`
	EndTime              time.Time            `json:"end_time"`
	DurationSeconds      float64              `json:"duration_seconds"`
	TotalVulnerabilities int                  `json:"total_vulnerabilities"`
	Targets              []*core.TargetResult `json:"targets"`
}

func (r *Reporter) writeJSON(out io.Writer, session *core.ScanSession) error {
	doc := jsonReport{
		SessionID:            session.ID,
		StartTime:            session.StartTime,
		EndTime:              session.EndTime,
		DurationSeconds:      session.Duration().Seconds(),
		TotalVulnerabilities: session.TotalVulnerabilities(),
		Targets:              session.Results(),
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(doc)
}

func (r *Reporter) writeText(out io.Writer, session *core.ScanSession) error {
	fmt.Fprintf(out, "Cache Poisoning Scan Report\n")
	fmt.Fprintf(out, "Session:  %s\n", session.ID)
	fmt.Fprintf(out, "Duration: %s\n", session.Duration().Round(time.Millisecond))
	fmt.Fprintf(out, "Targets:  %d\n", len(session.Results()))
	fmt.Fprintf(out, "Confirmed vulnerabilities: %d\n", session.TotalVulnerabilities())
	fmt.Fprintln(out, strings.Repeat("=", 60))

	for _, target := range session.Results() {
		fmt.Fprintf(out, "\nTarget: %s [%s]\n", target.Target, target.Status)
		fmt.Fprintf(out, "  Endpoints: %d  Tests: %d  Probe errors: %d  Duration: %s\n",
			target.Stats.EndpointsDiscovered, target.Stats.TestsRun,
			target.Stats.ProbeErrors, target.Stats.Duration.Round(time.Millisecond))

		if len(target.Vulnerabilities) == 0 {
			fmt.Fprintln(out, "  No vulnerabilities confirmed.")
			continue
		}

		for i, vuln := range sortBySeverity(target.Vulnerabilities) {
			f := vuln.Finding
			fmt.Fprintf(out, "\n  [%d] %s  %s\n", i+1, strings.ToUpper(string(vuln.Severity)), f.Endpoint.URL)
			fmt.Fprintf(out, "      Header:          %s: %s\n", f.Payload.HeaderName, f.Payload.HeaderValue)
			fmt.Fprintf(out, "      Reflection:      %s\n", f.Reflection)
			fmt.Fprintf(out, "      Evidence:        %s\n", f.Evidence)
			fmt.Fprintf(out, "      Confidence:      %.2f\n", f.Confidence)
			fmt.Fprintf(out, "      Reproducibility: %d/%d (%.0f%%)\n",
				vuln.ConfirmedCount, vuln.AttemptCount, vuln.Reproducibility*100)
			if f.Reflection == core.ReflectionBodyExact && f.Poisoned != nil {
				fmt.Fprintf(out, "      Poisoned body:   %s\n", f.Poisoned.BodySnippet())
			}
			fmt.Fprintf(out, "      Validate manually:\n%s\n", indent(CurlCommands(f), "        "))
		}
	}
	return nil
}

// CurlCommands renders the manual validation sequence for a finding:
// baseline, poisoned request, then a clean re-fetch to observe the cached
// response.
func CurlCommands(f core.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Baseline request:\n")
	fmt.Fprintf(&b, "curl -i -s -o /dev/null -w \"Status: %%{http_code}\\nLocation: %%{redirect_url}\\n\" \\\n    \"%s\"\n\n", busted(f.Endpoint.URL))
	fmt.Fprintf(&b, "# Poisoning attempt with %s:\n", f.Payload.HeaderName)
	fmt.Fprintf(&b, "curl -i -s -o /dev/null -w \"Status: %%{http_code}\\nLocation: %%{redirect_url}\\n\" \\\n    -H \"%s: %s\" \\\n    \"%s\"\n\n",
		f.Payload.HeaderName, f.Payload.HeaderValue, busted(f.Endpoint.URL))
	fmt.Fprintf(&b, "# Verify the cached response (same cache buster, no header):\n")
	fmt.Fprintf(&b, "curl -i -s -o /dev/null -w \"Status: %%{http_code}\\nLocation: %%{redirect_url}\\n\" \\\n    \"%s\"\n", busted(f.Endpoint.URL))
	return b.String()
}

// busted appends a shell-expanded cache buster so the commands address a
// fresh cache key each run.
func busted(rawURL string) string {
	if strings.Contains(rawURL, "?") {
		return rawURL + "&cb=$(date +%s)"
	}
	return rawURL + "?cb=$(date +%s)"
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = prefix + line
		}
	}
	return strings.Join(lines, "\n")
}

// sortBySeverity orders vulnerabilities worst first, ties broken by URL for
// stable output.
func sortBySeverity(vulns []core.Vulnerability) []core.Vulnerability {
	rank := map[core.Severity]int{
		core.SeverityCritical: 0,
		core.SeverityHigh:     1,
		core.SeverityMedium:   2,
		core.SeverityLow:      3,
	}
	sorted := make([]core.Vulnerability, len(vulns))
	copy(sorted, vulns)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := rank[sorted[i].Severity], rank[sorted[j].Severity]
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Finding.Endpoint.URL < sorted[j].Finding.Endpoint.URL
	})
	return sorted
}

type htmlVuln struct {
	Index           int
	URL             string
	Header          string
	Value           string
	Severity        string
	SeverityClass   string
	Reflection      string
	Evidence        string
	Confidence      string
	Reproducibility string
	StatusCode      int
	Curl            string
}

type htmlTarget struct {
	Target    string
	Status    string
	Endpoints int
	Tests     int
	Vulns     []htmlVuln
}

type htmlReport struct {
	SessionID  string
	Date       string
	Duration   string
	TotalVulns int
	Targets    []htmlTarget
}

func (r *Reporter) writeHTML(out io.Writer, session *core.ScanSession) error {
	doc := htmlReport{
		SessionID:  session.ID,
		Date:       time.Now().Format("2006-01-02 15:04:05"),
		Duration:   session.Duration().Round(time.Millisecond).String(),
		TotalVulns: session.TotalVulnerabilities(),
	}

	for _, target := range session.Results() {
		ht := htmlTarget{
			Target:    target.Target,
			Status:    string(target.Status),
			Endpoints: target.Stats.EndpointsDiscovered,
			Tests:     target.Stats.TestsRun,
		}
		for i, vuln := range sortBySeverity(target.Vulnerabilities) {
			f := vuln.Finding
			hv := htmlVuln{
				Index:           i + 1,
				URL:             f.Endpoint.URL,
				Header:          f.Payload.HeaderName,
				Value:           f.Payload.HeaderValue,
				Severity:        strings.ToUpper(string(vuln.Severity)),
				SeverityClass:   severityClass(vuln.Severity),
				Reflection:      string(f.Reflection),
				Evidence:        f.Evidence,
				Confidence:      fmt.Sprintf("%.2f", f.Confidence),
				Reproducibility: fmt.Sprintf("%d/%d", vuln.ConfirmedCount, vuln.AttemptCount),
				Curl:            CurlCommands(f),
			}
			if f.Poisoned != nil {
				hv.StatusCode = f.Poisoned.StatusCode
			}
			ht.Vulns = append(ht.Vulns, hv)
		}
		doc.Targets = append(doc.Targets, ht)
	}

	return htmlTmpl.Execute(out, doc)
}

func severityClass(s core.Severity) string {
	switch s {
	case core.SeverityCritical, core.SeverityHigh:
		return "badge-danger"
	case core.SeverityMedium:
		return "badge-warning"
	default:
		return "badge-success"
	}
}

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>Cache Poisoning Scan Report</title>
    <style>
        body { font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; line-height: 1.6; color: #333; background-color: #f8f9fa; }
        .container { max-width: 1200px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #6a11cb 0%, #2575fc 100%); color: white; padding: 30px; border-radius: 8px; margin-bottom: 30px; }
        .header h1 { margin: 0; font-size: 28px; }
        .header p { margin: 5px 0 0; opacity: 0.9; }
        .summary { background: linear-gradient(to right, #00b09b, #96c93d); padding: 25px; border-radius: 8px; margin: 30px 0; color: white; }
        .target { margin: 25px 0; padding: 20px; border-radius: 8px; background: white; box-shadow: 0 2px 4px rgba(0,0,0,0.05); }
        .vulnerability { margin: 15px 0; padding: 15px; background: #f8f9fa; border-radius: 6px; }
        .vulnerability h3 { color: #e74c3c; margin-top: 0; }
        code, pre { background: #2d3748; color: #e2e8f0; padding: 15px; border-radius: 6px; overflow: auto; font-family: 'Courier New', monospace; font-size: 13px; }
        .badge { display: inline-block; padding: 4px 8px; border-radius: 4px; font-size: 12px; font-weight: bold; margin-right: 5px; }
        .badge-danger { background: #e74c3c; color: white; }
        .badge-warning { background: #f39c12; color: white; }
        .badge-success { background: #2ecc71; color: white; }
        .footer { margin-top: 50px; text-align: center; font-size: 0.9em; color: #777; padding: 20px; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>Cache Poisoning Scan Report</h1>
            <p><strong>Session:</strong> {{.SessionID}}</p>
            <p><strong>Date:</strong> {{.Date}}</p>
            <p><strong>Duration:</strong> {{.Duration}}</p>
        </div>

        <div class="summary">
            <h2>Scan Summary</h2>
            <p><strong>Targets scanned:</strong> {{len .Targets}}</p>
            <p><strong>Confirmed vulnerabilities:</strong> {{.TotalVulns}}</p>
        </div>

        {{range .Targets}}
        <div class="target">
            <h2>{{.Target}} <span class="badge badge-warning">{{.Status}}</span></h2>
            <p>{{.Endpoints}} endpoints discovered, {{.Tests}} tests run.</p>
            {{if .Vulns}}
                {{range .Vulns}}
                <div class="vulnerability">
                    <h3>#{{.Index}} <span class="badge {{.SeverityClass}}">{{.Severity}}</span> {{.URL}}</h3>
                    <ul>
                        <li><strong>Injected header:</strong> <code>{{.Header}}: {{.Value}}</code></li>
                        <li><strong>Reflection:</strong> {{.Reflection}}</li>
                        <li><strong>Evidence:</strong> {{.Evidence}}</li>
                        <li><strong>Confidence:</strong> {{.Confidence}}</li>
                        <li><strong>Reproducibility:</strong> {{.Reproducibility}}</li>
                        {{if .StatusCode}}<li><strong>Poisoned status:</strong> {{.StatusCode}}</li>{{end}}
                    </ul>
                    <h4>Validation Commands:</h4>
                    <pre>{{.Curl}}</pre>
                </div>
                {{end}}
            {{else}}
                <p>No vulnerabilities confirmed for this target.</p>
            {{end}}
        </div>
        {{end}}

        <div class="footer">
            <p>Generated by cachefang</p>
        </div>
    </div>
</body>
</html>
`))
