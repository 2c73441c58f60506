package csp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAppendFallbackPreservation(t *testing.T) {
	p := New().With(DefaultSrc, Sources(Self, "a.com"))

	merged := Append(p, ConnectSrc, "b.com")

	v, ok := merged.Get(ConnectSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self, "a.com", "b.com"}, v.Tokens(),
		"an absent directive inherits default-src before the append")

	// default-src itself is untouched.
	dv, ok := merged.Get(DefaultSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self, "a.com"}, dv.Tokens())
}

func TestAppendWithoutFallback(t *testing.T) {
	p := New().With(ScriptSrc, Sources(Self))

	merged := Append(p, ScriptSrc, "'nonce-x'")

	v, ok := merged.Get(ScriptSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self, "'nonce-x'"}, v.Tokens())
}

func TestAppendEmptyDirectiveUsesFallback(t *testing.T) {
	// An explicitly present but empty directive still falls back.
	p := New().
		With(DefaultSrc, Sources(Self)).
		With(ConnectSrc, Sources())

	merged := Append(p, ConnectSrc, "b.com")

	v, ok := merged.Get(ConnectSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self, "b.com"}, v.Tokens())
}

func TestAppendNoDefaultSrc(t *testing.T) {
	merged := Append(New(), ConnectSrc, "b.com")

	v, ok := merged.Get(ConnectSrc)
	require.True(t, ok)
	assert.Equal(t, []string{"b.com"}, v.Tokens())
}

func TestAppendRawStringDirective(t *testing.T) {
	p := New().With(ScriptSrc, Raw("'self' cdn.example.com"))

	merged := Append(p, ScriptSrc, "'nonce-x'")

	v, ok := merged.Get(ScriptSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self, "cdn.example.com", "'nonce-x'"}, v.Tokens())
}

func TestAppendComposesLeftToRight(t *testing.T) {
	p := New().With(DefaultSrc, Sources(Self))

	merged := Append(p, ConnectSrc, "a.com")
	merged = Append(merged, ConnectSrc, "b.com")

	v, ok := merged.Get(ConnectSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self, "a.com", "b.com"}, v.Tokens(),
		"second append builds on the first, not on the original base")
}

func TestSetAssignsRawValue(t *testing.T) {
	p := New().With(DefaultSrc, Sources(Self))

	merged := Set(p, ReportURI, "https://example.com/csp-report")

	v, ok := merged.Get(ReportURI)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/csp-report", v.String())

	// Set does not seed from default-src.
	assert.Equal(t, []string{"https://example.com/csp-report"}, v.Tokens())
}

// Append must never mutate its input, whatever the policy shape.
func TestAppendNeverMutatesInput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		token := rapid.StringMatching(`[a-z'.:*-]{1,12}`)

		directives := rapid.SliceOfDistinct(
			rapid.SampledFrom([]string{DefaultSrc, ScriptSrc, ConnectSrc, StyleSrc, ImgSrc}),
			rapid.ID,
		).Draw(t, "directives")

		p := New()
		for _, d := range directives {
			p = p.With(d, Sources(rapid.SliceOfN(token, 0, 4).Draw(t, "sources")...))
		}

		before := make(map[string][]string, p.Len())
		for _, d := range p.Directives() {
			v, _ := p.Get(d)
			before[d] = v.Tokens()
		}

		target := rapid.SampledFrom([]string{DefaultSrc, ScriptSrc, ConnectSrc, FontSrc}).Draw(t, "target")
		_ = Append(p, target, token.Draw(t, "token"))

		assert.Equal(t, len(before), p.Len())
		for _, d := range p.Directives() {
			v, _ := p.Get(d)
			assert.Equal(t, before[d], v.Tokens(), "directive %s changed in the input policy", d)
		}
	})
}
