package addon

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cspserve/cspserve/pkg/config"
	"github.com/cspserve/cspserve/pkg/csp"
	"github.com/cspserve/cspserve/pkg/domain"
)

// pathKind buckets request paths so the duration histogram keeps a
// bounded label set.
func pathKind(p string) string {
	switch ext := strings.ToLower(path.Ext(p)); ext {
	case "", ".html", ".htm":
		return "page"
	default:
		return "asset"
	}
}

// Middleware injects the policy into responses flowing through the dev
// server: the header variant before the inner handler runs, and the
// meta variant by rewriting HTML bodies when configured.
func (a *Addon) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() {
			a.metrics.ObserveRequest(pathKind(r.URL.Path), time.Since(start).Seconds())
		}()

		cfg := a.source.Current()
		if !cfg.Policy.IsEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		rt := cfg.Runtime()

		if cfg.Policy.HasDelivery(domain.DeliveryHeader) {
			a.setHeaders(w.Header(), cfg, rt)
		}

		if cfg.Policy.HasDelivery(domain.DeliveryMeta) {
			a.serveWithMeta(w, r, next, cfg, rt)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// setHeaders clears any stale policy headers left by upstream
// middleware and sets the active variant plus its legacy X- duplicate.
// An empty serialized policy leaves the headers cleared: some clients
// treat an empty CSP as block-everything, so no policy means no header.
func (a *Addon) setHeaders(h http.Header, cfg *config.Config, rt domain.Runtime) {
	reportOnly := reportOnlyActive(cfg, rt)
	serialized := csp.Serialize(a.resolvePolicy(cfg, rt, reportOnly))

	h.Del(csp.HeaderKey)
	h.Del(csp.ReportOnlyHeaderKey)
	h.Del(csp.LegacyHeaderKey)
	h.Del(csp.LegacyReportOnlyHeaderKey)

	if serialized == "" {
		return
	}

	if reportOnly {
		h.Set(csp.ReportOnlyHeaderKey, serialized)
		h.Set(csp.LegacyReportOnlyHeaderKey, serialized)
		a.metrics.RecordHeader("report-only")
	} else {
		h.Set(csp.HeaderKey, serialized)
		h.Set(csp.LegacyHeaderKey, serialized)
		a.metrics.RecordHeader("enforce")
	}
}
