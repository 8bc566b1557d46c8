package s3blob

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

type memWriter struct {
	keys        []string
	bodies      [][]byte
	contentType string
}

func (m *memWriter) Write(_ context.Context, key string, data []byte, contentType string) error {
	m.keys = append(m.keys, key)
	m.bodies = append(m.bodies, data)
	m.contentType = contentType
	return nil
}

type memOppStore struct{ opps []domain.Opportunity }

func (m *memOppStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error) {
	var out []domain.Opportunity
	for _, o := range m.opps {
		if o.DetectedAt.Before(cutoff) && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

type memAttemptStore struct{ attempts []domain.ExecutionAttempt }

func (m *memAttemptStore) ListBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.ExecutionAttempt, error) {
	var out []domain.ExecutionAttempt
	for _, a := range m.attempts {
		if a.StartedAt.Before(cutoff) && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

type memAudit struct{ events []string }

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func TestArchiveOpportunities(t *testing.T) {
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	opps := &memOppStore{opps: []domain.Opportunity{
		{ID: "old1", NetEdge: 0.08, DetectedAt: cutoff.Add(-48 * time.Hour)},
		{ID: "old2", NetEdge: 0.06, DetectedAt: cutoff.Add(-24 * time.Hour)},
		{ID: "fresh", NetEdge: 0.07, DetectedAt: cutoff.Add(time.Hour)},
	}}
	w := &memWriter{}
	audit := &memAudit{}
	arch := NewArchiver(w, opps, &memAttemptStore{}, audit)

	n, err := arch.ArchiveOpportunities(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("ArchiveOpportunities: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d, want 2", n)
	}

	if len(w.keys) != 1 || w.keys[0] != "archive/opportunities/2026-03.ndjson" {
		t.Errorf("keys = %v", w.keys)
	}
	if w.contentType != "application/x-ndjson" {
		t.Errorf("contentType = %q", w.contentType)
	}

	lines := bytes.Split(bytes.TrimRight(w.bodies[0], "\n"), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("body has %d lines, want 2", len(lines))
	}
	if !strings.Contains(string(lines[0]), `"old1"`) {
		t.Errorf("first line = %s", lines[0])
	}

	if len(audit.events) != 1 || audit.events[0] != "archive.opportunities" {
		t.Errorf("audit events = %v", audit.events)
	}
}

func TestArchiveAttemptsEmpty(t *testing.T) {
	w := &memWriter{}
	arch := NewArchiver(w, &memOppStore{}, &memAttemptStore{}, &memAudit{})

	n, err := arch.ArchiveAttempts(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ArchiveAttempts: %v", err)
	}
	if n != 0 {
		t.Errorf("archived %d, want 0", n)
	}
	if len(w.keys) != 0 {
		t.Error("no upload must happen for an empty range")
	}
}
