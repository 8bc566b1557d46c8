package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/sportsarb/internal/domain"
)

// archiveLimit bounds one export pass. Rows beyond the limit are picked up by
// the next pass, after the retention step has deleted the exported ones.
const archiveLimit = 50000

// Narrow store views for the archiver: it needs only the time-ranged reads,
// not the full journal interfaces. The Postgres stores satisfy them
// implicitly.

// OpportunityArchiveStore reads opportunities older than a cutoff.
type OpportunityArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error)
}

// AttemptArchiveStore reads attempts older than a cutoff.
type AttemptArchiveStore interface {
	ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExecutionAttempt, error)
}

// Archiver exports aged journal rows to NDJSON objects in blob storage. It
// never deletes from the primary store: retention deletes separately, after
// the export succeeded, so a failed upload can not lose records.
type Archiver struct {
	writer        domain.BlobWriter
	opportunities OpportunityArchiveStore
	attempts      AttemptArchiveStore
	audit         domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	opportunities OpportunityArchiveStore,
	attempts AttemptArchiveStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:        writer,
		opportunities: opportunities,
		attempts:      attempts,
		audit:         audit,
	}
}

// ArchiveOpportunities exports opportunities detected before the cutoff to
// archive/opportunities/YYYY-MM.ndjson and records the export in the audit
// log. It returns how many rows were exported.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.opportunities.ListBefore(ctx, before, archiveLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalNDJSON(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if err := a.writer.Write(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	count := int64(len(rows))
	if err := a.audit.Log(ctx, "archive.opportunities", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive opportunities audit log: %w", err)
	}
	return count, nil
}

// ArchiveAttempts exports attempts started before the cutoff to
// archive/attempts/YYYY-MM.ndjson and records the export in the audit log.
func (a *Archiver) ArchiveAttempts(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.attempts.ListBefore(ctx, before, archiveLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive attempts query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalNDJSON(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive attempts marshal: %w", err)
	}

	path := archivePath("attempts", before)
	if err := a.writer.Write(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive attempts upload: %w", err)
	}

	count := int64(len(rows))
	if err := a.audit.Log(ctx, "archive.attempts", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive attempts audit log: %w", err)
	}
	return count, nil
}

// archivePath partitions archive objects by the cutoff's year-month:
//
//	archive/opportunities/2026-03.ndjson
//	archive/attempts/2026-03.ndjson
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.ndjson", kind, before.Format("2006-01"))
}

// marshalNDJSON serialises records as newline-delimited JSON, one compact
// line per record.
func marshalNDJSON[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("ndjson encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
