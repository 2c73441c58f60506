package csp

// Append returns a copy of the policy with token added to the named
// directive. The input policy is never modified.
//
// When the directive has no explicit sources yet, a CSP client would
// fall back to default-src for it. Appending the bare token in that
// state would replace the effective fallback policy with one containing
// only the new token, silently narrowing permissions. To preserve the
// effective policy the directive is first seeded with default-src's
// sources, then the token is appended.
//
// Appends compose left-to-right: each call re-derives fallback from the
// policy it is handed, so a second append to the same directive sees
// the first one's result rather than the original base.
func Append(p Policy, directive, token string) Policy {
	existing, _ := p.Get(directive)
	base := existing.Tokens()
	if len(base) == 0 {
		if fallback, ok := p.Get(DefaultSrc); ok {
			base = fallback.Tokens()
		}
	}
	return p.With(directive, Sources(append(base, token)...))
}

// Set returns a copy of the policy with the directive assigned a raw
// value, bypassing fallback seeding. Used for directives that carry a
// single destination rather than a source list, such as report-uri.
func Set(p Policy, directive, raw string) Policy {
	return p.With(directive, Raw(raw))
}
