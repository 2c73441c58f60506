// Package storage provides the in-memory stores backing the dev
// server's inspection endpoints.
package storage

import (
	"sync"
	"time"
)

// Report is a received CSP violation report with its envelope.
type Report struct {
	ID         string         `json:"id"`
	ReceivedAt time.Time      `json:"received_at"`
	RemoteAddr string         `json:"remote_addr"`
	Body       map[string]any `json:"body"`
}

// ReportStore keeps the most recent violation reports in memory so they
// can be inspected during development. Nothing is persisted; the buffer
// is bounded and old reports are evicted first.
type ReportStore struct {
	mu      sync.RWMutex
	reports []Report
	limit   int
}

// NewReportStore creates a store retaining at most limit reports.
func NewReportStore(limit int) *ReportStore {
	if limit <= 0 {
		limit = 100
	}
	return &ReportStore{limit: limit}
}

// Save appends a report, evicting the oldest once the limit is reached.
func (s *ReportStore) Save(r Report) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports = append(s.reports, r)
	if len(s.reports) > s.limit {
		s.reports = s.reports[len(s.reports)-s.limit:]
	}
}

// List returns the retained reports, newest last.
func (s *ReportStore) List() []Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Report(nil), s.reports...)
}

// Len returns the number of retained reports.
func (s *ReportStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
