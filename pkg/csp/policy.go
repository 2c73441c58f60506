// Package csp implements the Content-Security-Policy model the addon
// delivers: an ordered directive mapping, the fallback-preserving merge
// used for runtime appends, and serialization for the header and meta
// delivery channels.
package csp

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cspserve/cspserve/pkg/domain"
)

// Recognized directive names. Policies may carry arbitrary directives;
// these are the ones the addon itself reads or appends to.
const (
	DefaultSrc     = "default-src"
	ScriptSrc      = "script-src"
	StyleSrc       = "style-src"
	ConnectSrc     = "connect-src"
	ImgSrc         = "img-src"
	FontSrc        = "font-src"
	MediaSrc       = "media-src"
	ObjectSrc      = "object-src"
	FrameAncestors = "frame-ancestors"
	Sandbox        = "sandbox"
	ReportURI      = "report-uri"
)

// Common keyword sources.
const (
	Self = "'self'"
	None = "'none'"
)

type valueKind uint8

const (
	kindAbsent valueKind = iota
	kindRaw
	kindSources
)

// Value is a directive value: either a raw opaque string or an ordered
// source list. The two forms are decided once, at the construction
// boundary; the merge path only ever sees the normalized token view.
type Value struct {
	kind    valueKind
	raw     string
	sources []string
}

// Raw wraps an opaque string value, used as-is by the serializer.
func Raw(s string) Value {
	return Value{kind: kindRaw, raw: s}
}

// Sources wraps an ordered source-token list.
func Sources(tokens ...string) Value {
	return Value{kind: kindSources, sources: append([]string(nil), tokens...)}
}

// IsZero reports whether the value is absent.
func (v Value) IsZero() bool {
	return v.kind == kindAbsent
}

// Tokens returns the normalized source-token view of the value. The
// returned slice is a fresh copy; callers may append to it freely.
func (v Value) Tokens() []string {
	switch v.kind {
	case kindRaw:
		return splitTokens(v.raw)
	case kindSources:
		return append([]string(nil), v.sources...)
	default:
		return nil
	}
}

// String renders the value in its serialized form.
func (v Value) String() string {
	switch v.kind {
	case kindRaw:
		return strings.TrimSpace(v.raw)
	case kindSources:
		return strings.Join(v.sources, " ")
	default:
		return ""
	}
}

func splitTokens(s string) []string {
	var tokens []string
	for _, p := range strings.Split(s, " ") {
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// Normalize converts a loosely-typed directive value into an ordered
// token sequence. Absent values yield an empty sequence, strings are
// split on spaces preserving order, and sequences pass through with
// their order intact. Anything else is a configuration-authoring bug
// and fails with domain.ErrInvalidPolicyValue.
func Normalize(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return splitTokens(t), nil
	case []string:
		return t, nil
	case Value:
		return t.Tokens(), nil
	case []any:
		tokens := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: source token %v is %T, want string", domain.ErrInvalidPolicyValue, item, item)
			}
			tokens = append(tokens, s)
		}
		return tokens, nil
	default:
		return nil, fmt.Errorf("%w: %T is neither a string nor a source list", domain.ErrInvalidPolicyValue, v)
	}
}

type entry struct {
	name  string
	value Value
}

// Policy is an ordered mapping from directive name to value. Directive
// keys are unique; insertion order is preserved so serialization stays
// deterministic. The zero Policy is empty and ready to use.
//
// Policy values are treated as immutable: every mutating operation
// returns a new Policy and leaves the receiver untouched, so a
// configured base policy can be shared across concurrent requests.
type Policy struct {
	entries []entry
}

// New returns an empty policy.
func New() Policy {
	return Policy{}
}

// FromMap builds a policy from a loosely-typed directive map, such as
// one decoded from JSON. Map iteration order is not deterministic, so
// directives are inserted in sorted name order.
func FromMap(m map[string]any) (Policy, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	p := New()
	for _, name := range names {
		tokens, err := Normalize(m[name])
		if err != nil {
			return Policy{}, fmt.Errorf("directive %q: %w", name, err)
		}
		p = p.With(name, Sources(tokens...))
	}
	return p, nil
}

// Get returns the value for a directive, if present.
func (p Policy) Get(name string) (Value, bool) {
	for _, e := range p.entries {
		if e.name == name {
			return e.value, true
		}
	}
	return Value{}, false
}

// Len returns the number of directives, including empty-valued ones.
func (p Policy) Len() int {
	return len(p.entries)
}

// Directives returns the directive names in insertion order.
func (p Policy) Directives() []string {
	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.name
	}
	return names
}

// With returns a copy of the policy with the directive set to v,
// preserving the directive's original position when it already exists.
// The receiver is not modified.
func (p Policy) With(name string, v Value) Policy {
	entries := make([]entry, len(p.entries), len(p.entries)+1)
	copy(entries, p.entries)
	for i := range entries {
		if entries[i].name == name {
			entries[i].value = v
			return Policy{entries: entries}
		}
	}
	return Policy{entries: append(entries, entry{name: name, value: v})}
}

// Clone returns a shallow working copy. Values are immutable, so
// sharing them between the copies is safe; only the entry list is
// duplicated.
func (p Policy) Clone() Policy {
	return Policy{entries: append([]entry(nil), p.entries...)}
}

// UnmarshalYAML decodes a policy from a YAML mapping, keeping the
// document's directive order. Scalar values become raw strings and
// sequences become source lists; any other node shape reports
// domain.ErrInvalidPolicyValue.
func (p *Policy) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: policy must be a mapping of directives", domain.ErrInvalidPolicyValue)
	}

	out := New()
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		var name string
		if err := keyNode.Decode(&name); err != nil {
			return fmt.Errorf("policy directive name: %w", err)
		}

		switch valNode.Kind {
		case yaml.ScalarNode:
			var raw string
			if err := valNode.Decode(&raw); err != nil {
				return fmt.Errorf("directive %q: %w", name, err)
			}
			out = out.With(name, Raw(raw))
		case yaml.SequenceNode:
			var tokens []string
			if err := valNode.Decode(&tokens); err != nil {
				return fmt.Errorf("directive %q: %w", name, err)
			}
			out = out.With(name, Sources(tokens...))
		default:
			return fmt.Errorf("directive %q: %w: value must be a string or a list", name, domain.ErrInvalidPolicyValue)
		}
	}

	*p = out
	return nil
}

// MarshalYAML renders the policy as a mapping in insertion order, with
// source lists as sequences and raw values as scalars.
func (p Policy) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range p.entries {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: e.name}
		valNode := &yaml.Node{}
		switch e.value.kind {
		case kindSources:
			if err := valNode.Encode(e.value.sources); err != nil {
				return nil, err
			}
		default:
			valNode.Kind = yaml.ScalarNode
			valNode.Value = e.value.raw
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}
