package engine

import (
	"context"
	"os"
)

// ScanReport summarizes one pass over the watched tree.
type ScanReport struct {
	Entities int
	Trashed  int
	Bare     int
	Docs     int
}

// Scan walks the whole workspace once, priming metadata snapshots from
// existing documents and scheduling promotion for bare folders left
// over from a previous run. The engine holds no durable state, so this
// is how a restart catches up.
func (e *Engine) Scan(ctx context.Context) (ScanReport, error) {
	var report ScanReport
	err := e.ws.Walk(ctx, "", func(rel string, info os.FileInfo) error {
		if rel == "." {
			return nil
		}
		cls := e.classify.Classify(rel)
		switch cls.Kind {
		case KindEntityFolder:
			if !info.IsDir() {
				return nil
			}
			if cls.InTrash {
				report.Trashed++
			} else {
				report.Entities++
			}

		case KindMetadataDoc:
			if info.IsDir() {
				return nil
			}
			doc, err := e.docs.Load(ctx, cls.Identifier)
			if err != nil {
				e.log.Warn().Err(err).
					Int64("identifier", cls.Identifier).
					Msg("metadata document skipped during scan")
				return nil
			}
			e.mu.Lock()
			if _, ok := e.snapshots[cls.Identifier]; !ok {
				e.snapshots[cls.Identifier] = MetadataSnapshot{
					Slug:   doc.Slug,
					Title:  doc.Title,
					Status: doc.Status,
				}
			}
			e.mu.Unlock()
			report.Docs++

		case KindBareFolder:
			if !info.IsDir() {
				return nil
			}
			report.Bare++
			e.handleBareFolder(cls)
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	e.log.Info().
		Int("entities", report.Entities).
		Int("trashed", report.Trashed).
		Int("bare", report.Bare).
		Int("docs", report.Docs).
		Msg("workspace scan complete")
	return report, nil
}

// Flush runs every debounced action that is still waiting out its
// window. One-shot passes call it before Close so promotions scheduled
// by Scan complete instead of being cancelled.
func (e *Engine) Flush() {
	e.debounce.Flush()
}
