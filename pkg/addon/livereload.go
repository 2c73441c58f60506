package addon

import (
	"fmt"

	"github.com/cspserve/cspserve/pkg/csp"
	"github.com/cspserve/cspserve/pkg/domain"
)

// candidateHosts returns the hosts a live-reload client may connect
// through. The loopback candidates are fixed; the configured hostname
// is added last when present and not already covered.
func candidateHosts(configured string) []string {
	hosts := []string{"localhost", "0.0.0.0"}
	if configured == "" {
		return hosts
	}
	for _, h := range hosts {
		if h == configured {
			return hosts
		}
	}
	return append(hosts, configured)
}

// applyLiveReload widens the policy so the live-reload websocket and
// its client script stay reachable: each candidate host contributes a
// ws:// (or wss:// under TLS) origin to connect-src and a bare
// host:port to script-src.
func applyLiveReload(p csp.Policy, rt domain.Runtime) csp.Policy {
	scheme := "ws"
	if rt.LiveReloadTLS {
		scheme = "wss"
	}

	for _, host := range candidateHosts(rt.LiveReloadHost) {
		hostPort := fmt.Sprintf("%s:%d", host, rt.LiveReloadPort)
		p = csp.Append(p, csp.ConnectSrc, fmt.Sprintf("%s://%s", scheme, hostPort))
		p = csp.Append(p, csp.ScriptSrc, hostPort)
	}
	return p
}
