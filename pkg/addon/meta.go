package addon

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cspserve/cspserve/pkg/config"
	"github.com/cspserve/cspserve/pkg/csp"
	"github.com/cspserve/cspserve/pkg/domain"
)

// serveWithMeta runs the inner handler against a buffered response and
// rewrites HTML bodies with a policy meta tag in the page head. Meta
// delivery has no report-only variant, so the policy is resolved
// without the report-endpoint injection and always in enforce form.
func (a *Addon) serveWithMeta(w http.ResponseWriter, r *http.Request, next http.Handler, cfg *config.Config, rt domain.Runtime) {
	if reportOnlyActive(cfg, rt) {
		a.logger.Warn("Meta delivery has no report-only variant, skipping meta tag")
		next.ServeHTTP(w, r)
		return
	}

	serialized := csp.Serialize(a.resolvePolicy(cfg, rt, false))
	if serialized == "" {
		next.ServeHTTP(w, r)
		return
	}

	// Warn-and-keep: the channel will ignore these directives, but
	// stripping them is not this addon's call.
	for _, name := range csp.MetaUnsupported(cfg.Policy.Directives) {
		a.logger.Warn("Directive is not supported in meta delivery and will be ignored by the client",
			"directive", name)
	}

	rec := newBufferedResponse(w)
	next.ServeHTTP(rec, r)

	if !strings.HasPrefix(rec.contentType(), "text/html") {
		rec.flush(rec.body.Bytes())
		return
	}

	var rewritten bytes.Buffer
	injected, err := InjectMeta(&rewritten, bytes.NewReader(rec.body.Bytes()), serialized)
	if err != nil || !injected {
		if err != nil {
			a.logger.Warn("Meta injection failed, serving page unmodified", "path", r.URL.Path, "error", err)
		}
		rec.flush(rec.body.Bytes())
		return
	}

	a.metrics.RecordMetaInjection()
	rec.flush(rewritten.Bytes())
}

// InjectMeta copies the HTML document from src to dst, inserting a
// Content-Security-Policy meta tag immediately after the opening
// <head> tag. It reports whether an injection point was found; a
// document without a head passes through unchanged.
func InjectMeta(dst io.Writer, src io.Reader, serialized string) (bool, error) {
	tag := metaTag(serialized)
	injected := false

	z := html.NewTokenizer(src)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				return injected, nil
			}
			return injected, z.Err()
		}

		if _, err := dst.Write(z.Raw()); err != nil {
			return injected, err
		}

		if injected || tt != html.StartTagToken {
			continue
		}
		name, _ := z.TagName()
		if atom.Lookup(name) != atom.Head {
			continue
		}

		if _, err := io.WriteString(dst, tag); err != nil {
			return injected, err
		}
		injected = true
	}
}

var metaEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;")

func metaTag(serialized string) string {
	return `<meta http-equiv="` + csp.HeaderKey + `" content="` + metaEscaper.Replace(serialized) + `">`
}

// bufferedResponse captures the inner handler's output so the body can
// be rewritten before anything reaches the client. It deliberately does
// not forward http.Flusher or io.ReaderFrom: under meta delivery the
// whole response is held back until flush, so streaming is unavailable.
type bufferedResponse struct {
	inner  http.ResponseWriter
	body   bytes.Buffer
	status int
}

func newBufferedResponse(inner http.ResponseWriter) *bufferedResponse {
	return &bufferedResponse{inner: inner}
}

func (b *bufferedResponse) Header() http.Header {
	return b.inner.Header()
}

func (b *bufferedResponse) WriteHeader(status int) {
	b.status = status
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	return b.body.Write(p)
}

func (b *bufferedResponse) contentType() string {
	ct := b.Header().Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(b.body.Bytes())
	}
	return ct
}

// flush writes the final body to the client, correcting Content-Length
// for any rewrite.
func (b *bufferedResponse) flush(body []byte) {
	if b.Header().Get("Content-Length") != "" {
		b.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	if b.status != 0 {
		b.inner.WriteHeader(b.status)
	}
	_, _ = b.inner.Write(body)
}
