// Package addon wires the policy model into a web application's build
// and dev-server output: it injects CSP headers per request, rewrites
// served HTML with a policy meta tag, and receives violation reports.
package addon

import (
	"fmt"
	"log/slog"

	"github.com/cspserve/cspserve/pkg/config"
	"github.com/cspserve/cspserve/pkg/csp"
	"github.com/cspserve/cspserve/pkg/domain"
	"github.com/cspserve/cspserve/pkg/storage"
)

// ConfigSource yields the current configuration. Implementations must
// be safe for concurrent use; the file-backed provider swaps the whole
// value on reload so readers never observe a partial update.
type ConfigSource interface {
	Current() *config.Config
}

// StaticConfig adapts a fixed configuration to the ConfigSource
// interface, for builds and tests that never reload.
type StaticConfig struct {
	Config *config.Config
}

// Current implements ConfigSource.
func (s StaticConfig) Current() *config.Config {
	return s.Config
}

// Addon holds the resolved collaborators for the delivery pipeline.
// It carries no per-request state: every request derives its own
// working policy copy, so concurrent requests never observe each
// other's appends.
type Addon struct {
	source  ConfigSource
	logger  *slog.Logger
	metrics *Metrics
	reports *storage.ReportStore
}

// New creates an addon reading configuration from source.
func New(source ConfigSource, logger *slog.Logger) *Addon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Addon{
		source:  source,
		logger:  logger,
		metrics: NewMetrics(),
		reports: storage.NewReportStore(100),
	}
}

// Metrics exposes the addon's metric collectors.
func (a *Addon) Metrics() *Metrics {
	return a.metrics
}

// Reports exposes the retained violation reports.
func (a *Addon) Reports() *storage.ReportStore {
	return a.reports
}

// reportPath is the fixed violation-report endpoint path.
const reportPath = "/csp-report"

// reportOrigin computes the origin violation reports are sent to.
func reportOrigin(rt domain.Runtime) string {
	scheme := "http"
	if rt.TLS {
		scheme = "https"
	}
	host := rt.Host
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, rt.Port)
}

// resolvePolicy merges the configured base policy with the runtime-only
// appends for one request or build. It always starts from a defensive
// shallow copy of the base, so the configured policy is never mutated.
//
// withReport selects the report-endpoint injection, which applies only
// to header delivery in report-only mode; meta delivery resolves with
// it off. The injection is skipped when report-uri is already set
// explicitly, so an operator-chosen destination wins.
func (a *Addon) resolvePolicy(cfg *config.Config, rt domain.Runtime, withReport bool) csp.Policy {
	p := cfg.Policy.Directives.Clone()

	if rt.IsTest() {
		p = csp.Append(p, csp.ScriptSrc, csp.NonceToken(csp.Nonce()))
		a.metrics.RecordAppend("test-nonce")
	}

	if rt.LiveReload {
		p = applyLiveReload(p, rt)
		a.metrics.RecordAppend("live-reload")
	}

	if withReport {
		if _, ok := p.Get(csp.ReportURI); !ok {
			origin := reportOrigin(rt)
			p = csp.Append(p, csp.ConnectSrc, origin)
			p = csp.Set(p, csp.ReportURI, origin+reportPath)
			a.metrics.RecordAppend("report-endpoint")
		}
	}

	return p
}

// reportOnlyActive reports whether the header is delivered in
// report-only form. The test environment enforces the policy so
// violations fail tests instead of merely logging.
func reportOnlyActive(cfg *config.Config, rt domain.Runtime) bool {
	return cfg.Policy.ReportOnly && !rt.IsTest()
}
