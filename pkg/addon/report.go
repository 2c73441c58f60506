package addon

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cspserve/cspserve/pkg/storage"
)

// maxReportBytes bounds a violation report body. Real reports are a few
// hundred bytes; anything larger is noise or abuse.
const maxReportBytes = 64 << 10

// reportAck is the fixed acknowledgement payload the endpoint returns.
var reportAck = map[string]string{"status": "ok"}

// ReportHandler returns the violation-report endpoint. Browsers POST
// JSON bodies with content-type application/csp-report (or plain JSON);
// each accepted report is logged with a generated identifier and
// acknowledged with a fixed payload.
func (a *Addon) ReportHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			a.metrics.RecordReport("bad-method")
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || (mediaType != "application/csp-report" && mediaType != "application/json") {
			a.metrics.RecordReport("bad-content-type")
			http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBytes))
		if err != nil {
			a.metrics.RecordReport("read-error")
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		var report map[string]any
		if err := json.Unmarshal(body, &report); err != nil {
			a.metrics.RecordReport("bad-json")
			http.Error(w, "malformed report", http.StatusBadRequest)
			return
		}

		id := uuid.NewString()
		a.reports.Save(storage.Report{
			ID:         id,
			ReceivedAt: time.Now(),
			RemoteAddr: r.RemoteAddr,
			Body:       report,
		})

		a.metrics.RecordReport("accepted")
		a.logger.Info("CSP violation report received",
			"report_id", id,
			"remote_addr", r.RemoteAddr,
			"report", report,
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(reportAck)
	})
}

// ListReportsHandler returns the dev inspection endpoint listing the
// retained violation reports.
func (a *Addon) ListReportsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reports": a.reports.List(),
		})
	})
}
