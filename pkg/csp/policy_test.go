package csp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"

	"github.com/cspserve/cspserve/pkg/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr bool
	}{
		{name: "absent", input: nil, want: nil},
		{name: "empty string", input: "", want: nil},
		{name: "single token string", input: "'self'", want: []string{"'self'"}},
		{name: "space separated string", input: "'self' a.com b.com", want: []string{"'self'", "a.com", "b.com"}},
		{name: "string slice", input: []string{"'self'", "a.com"}, want: []string{"'self'", "a.com"}},
		{name: "any slice of strings", input: []any{"'self'", "a.com"}, want: []string{"'self'", "a.com"}},
		{name: "number", input: 42, wantErr: true},
		{name: "nested slice", input: []any{[]any{"'self'"}}, wantErr: true},
		{name: "bool", input: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidPolicyValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tokens := rapid.SliceOf(rapid.StringMatching(`[a-z'.:*-]{1,12}`)).Draw(t, "tokens")

		once, err := Normalize(tokens)
		require.NoError(t, err)

		twice, err := Normalize(once)
		require.NoError(t, err)

		assert.Equal(t, once, twice)
	})
}

func TestPolicyWithPreservesOrder(t *testing.T) {
	p := New().
		With(DefaultSrc, Sources(Self)).
		With(ScriptSrc, Sources(Self)).
		With(ConnectSrc, Sources(Self))

	assert.Equal(t, []string{DefaultSrc, ScriptSrc, ConnectSrc}, p.Directives())

	// Updating an existing directive keeps its position.
	p2 := p.With(ScriptSrc, Sources(Self, "'unsafe-eval'"))
	assert.Equal(t, []string{DefaultSrc, ScriptSrc, ConnectSrc}, p2.Directives())
}

func TestPolicyWithDoesNotMutateReceiver(t *testing.T) {
	p := New().With(ScriptSrc, Sources(Self))
	_ = p.With(ScriptSrc, Sources(None)).With(ImgSrc, Sources("data:"))

	v, ok := p.Get(ScriptSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self}, v.Tokens())
	assert.Equal(t, 1, p.Len())
}

func TestValueTokensReturnsCopy(t *testing.T) {
	v := Sources(Self, "a.com")
	tokens := v.Tokens()
	tokens[0] = "evil.com"

	assert.Equal(t, []string{Self, "a.com"}, v.Tokens())
}

func TestFromMapSortsDirectives(t *testing.T) {
	p, err := FromMap(map[string]any{
		ScriptSrc:  []string{Self},
		DefaultSrc: "'self' a.com",
		ConnectSrc: nil,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{ConnectSrc, DefaultSrc, ScriptSrc}, p.Directives())

	v, ok := p.Get(DefaultSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self, "a.com"}, v.Tokens())
}

func TestFromMapInvalidValue(t *testing.T) {
	_, err := FromMap(map[string]any{ScriptSrc: 7})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPolicyValue)
	assert.Contains(t, err.Error(), ScriptSrc)
}

func TestPolicyUnmarshalYAML(t *testing.T) {
	doc := `
default-src: "'none'"
script-src:
  - "'self'"
  - cdn.example.com
`
	var p Policy
	require.NoError(t, yaml.Unmarshal([]byte(doc), &p))

	assert.Equal(t, []string{DefaultSrc, ScriptSrc}, p.Directives())

	dv, ok := p.Get(DefaultSrc)
	require.True(t, ok)
	assert.Equal(t, []string{None}, dv.Tokens())

	sv, ok := p.Get(ScriptSrc)
	require.True(t, ok)
	assert.Equal(t, []string{Self, "cdn.example.com"}, sv.Tokens())
}

func TestPolicyUnmarshalYAMLRejectsMappingValue(t *testing.T) {
	doc := `
script-src:
  nested: true
`
	var p Policy
	err := yaml.Unmarshal([]byte(doc), &p)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidPolicyValue)
}

func TestPolicyYAMLRoundTrip(t *testing.T) {
	p := New().
		With(DefaultSrc, Sources(Self)).
		With(ReportURI, Raw("https://example.com/csp-report"))

	data, err := yaml.Marshal(p)
	require.NoError(t, err)

	var back Policy
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, Serialize(p), Serialize(back))
}
