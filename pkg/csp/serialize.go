package csp

import "strings"

// Header names for the two delivery modes, plus the X- prefixed
// duplicates some legacy clients still require.
const (
	HeaderKey                 = "Content-Security-Policy"
	ReportOnlyHeaderKey       = "Content-Security-Policy-Report-Only"
	LegacyHeaderKey           = "X-Content-Security-Policy"
	LegacyReportOnlyHeaderKey = "X-Content-Security-Policy-Report-Only"
)

// metaUnsupported lists the directives the meta delivery channel
// ignores per the CSP specification.
var metaUnsupported = []string{ReportURI, FrameAncestors, Sandbox}

// Serialize renders the policy as a header or meta-content value:
// "<directive> <value>" clauses joined by "; ", in insertion order.
// Directives whose value serializes to nothing are skipped. An empty
// result means "no policy" and the caller must skip emission entirely;
// some clients treat an empty CSP as block-everything.
func Serialize(p Policy) string {
	var b strings.Builder
	for _, e := range p.entries {
		v := e.value.String()
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.name)
		b.WriteByte(' ')
		b.WriteString(v)
	}
	return b.String()
}

// MetaUnsupported returns the directives present in the policy that a
// <meta> delivery channel will ignore. The serializer does not strip
// them; the caller decides whether to warn, drop, or keep. This addon
// warns and keeps, trusting clients to ignore unsupported directives.
func MetaUnsupported(p Policy) []string {
	var offending []string
	for _, name := range metaUnsupported {
		if _, ok := p.Get(name); ok {
			offending = append(offending, name)
		}
	}
	return offending
}
