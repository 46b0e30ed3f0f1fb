package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/triarb/internal/domain"
)

// OpportunityArchiveStore provides read access to opportunity history for
// archival purposes.
type OpportunityArchiveStore interface {
	// ListBefore returns all opportunities detected strictly before the
	// given cutoff time.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error)
}

// Pruner removes rows that have been archived.
type Pruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// OpportunityArchiver copies old opportunities to object storage as JSONL.
type OpportunityArchiver struct {
	writer domain.BlobWriter
	store  OpportunityArchiveStore
	pruner Pruner
	now    func() time.Time
	logger *slog.Logger
}

// ArchiverOption configures an OpportunityArchiver.
type ArchiverOption func(*OpportunityArchiver)

// WithPruner deletes archived rows once the upload succeeds.
func WithPruner(p Pruner) ArchiverOption {
	return func(a *OpportunityArchiver) { a.pruner = p }
}

// WithArchiveLogger sets the logger.
func WithArchiveLogger(l *slog.Logger) ArchiverOption {
	return func(a *OpportunityArchiver) { a.logger = l.With(slog.String("component", "archiver")) }
}

// NewOpportunityArchiver creates an archiver reading from store and writing
// through writer.
func NewOpportunityArchiver(writer domain.BlobWriter, store OpportunityArchiveStore, opts ...ArchiverOption) *OpportunityArchiver {
	a := &OpportunityArchiver{
		writer: writer,
		store:  store,
		now:    time.Now,
		logger: slog.Default().With(slog.String("component", "archiver")),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ArchiveBefore uploads every opportunity older than before to
// opportunities/YYYY/MM/DD/<unix>.jsonl, dated by the cutoff, and returns
// the number archived. Nothing is written when there is nothing to archive.
func (a *OpportunityArchiver) ArchiveBefore(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := ArchivePath(before, a.now())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}
	count := int64(len(opps))

	if a.pruner != nil {
		deleted, err := a.pruner.DeleteBefore(ctx, before)
		if err != nil {
			return count, fmt.Errorf("s3blob: prune archived opportunities: %w", err)
		}
		a.logger.InfoContext(ctx, "pruned archived opportunities", slog.Int64("deleted", deleted))
	}

	a.logger.InfoContext(ctx, "archived opportunities",
		slog.String("path", path),
		slog.Int64("count", count),
		slog.String("before", before.UTC().Format(time.RFC3339)),
	)
	return count, nil
}

// ArchivePath returns the object key for an archive cut at before and
// written at now.
func ArchivePath(before, now time.Time) string {
	return fmt.Sprintf("opportunities/%s/%d.jsonl", before.UTC().Format("2006/01/02"), now.Unix())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
