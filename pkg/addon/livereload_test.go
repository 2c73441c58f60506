package addon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cspserve/cspserve/pkg/csp"
	"github.com/cspserve/cspserve/pkg/domain"
)

func TestCandidateHosts(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		want       []string
	}{
		{name: "empty hostname excluded", configured: "", want: []string{"localhost", "0.0.0.0"}},
		{name: "configured appended last", configured: "example.com", want: []string{"localhost", "0.0.0.0", "example.com"}},
		{name: "localhost not duplicated", configured: "localhost", want: []string{"localhost", "0.0.0.0"}},
		{name: "wildcard not duplicated", configured: "0.0.0.0", want: []string{"localhost", "0.0.0.0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, candidateHosts(tt.configured))
		})
	}
}

func TestApplyLiveReload(t *testing.T) {
	base := csp.New().
		With(csp.ConnectSrc, csp.Sources(csp.Self)).
		With(csp.ScriptSrc, csp.Sources(csp.Self))

	rt := domain.Runtime{
		LiveReload:     true,
		LiveReloadHost: "example.com",
		LiveReloadPort: 4200,
	}

	merged := applyLiveReload(base, rt)

	connect, ok := merged.Get(csp.ConnectSrc)
	require.True(t, ok)
	assert.Equal(t,
		[]string{csp.Self, "ws://localhost:4200", "ws://0.0.0.0:4200", "ws://example.com:4200"},
		connect.Tokens())

	script, ok := merged.Get(csp.ScriptSrc)
	require.True(t, ok)
	assert.Equal(t,
		[]string{csp.Self, "localhost:4200", "0.0.0.0:4200", "example.com:4200"},
		script.Tokens())

	// Input policy untouched.
	connect, _ = base.Get(csp.ConnectSrc)
	assert.Equal(t, []string{csp.Self}, connect.Tokens())
}

func TestApplyLiveReloadTLS(t *testing.T) {
	rt := domain.Runtime{
		LiveReload:     true,
		LiveReloadPort: 35729,
		LiveReloadTLS:  true,
	}

	merged := applyLiveReload(csp.New(), rt)

	connect, ok := merged.Get(csp.ConnectSrc)
	require.True(t, ok)
	assert.Equal(t, []string{"wss://localhost:35729", "wss://0.0.0.0:35729"}, connect.Tokens())
}

func TestApplyLiveReloadFallsBackToDefaultSrc(t *testing.T) {
	base := csp.New().With(csp.DefaultSrc, csp.Sources(csp.Self))

	rt := domain.Runtime{LiveReload: true, LiveReloadPort: 4200}
	merged := applyLiveReload(base, rt)

	connect, ok := merged.Get(csp.ConnectSrc)
	require.True(t, ok)
	assert.Equal(t, []string{csp.Self, "ws://localhost:4200", "ws://0.0.0.0:4200"}, connect.Tokens())
}
