// Package syncer drives reconciliation passes over the workspace: it
// enumerates document stems, reconciles each pair of forms, executes the
// authoritative document, and re-materializes both artifacts.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/nbsync/internal/fingerprint"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/notebook"
	"github.com/starford/nbsync/internal/reconcile"
	"github.com/starford/nbsync/internal/runner"
	"github.com/starford/nbsync/internal/script"
	"github.com/starford/nbsync/internal/storage"
)

// EventCallback is called after each processed document.
// kind is one of "synced", "conflict", "failed".
type EventCallback func(kind, name string)

// Result summarizes one pass over the workspace.
type Result struct {
	Processed int
	Conflicts []string
	Failed    []string
}

// Err returns a non-nil error when any document failed, so callers can map
// a partially failed pass onto a non-zero exit status.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("sync: %d of %d documents failed", len(r.Failed), r.Processed)
}

// Syncer reconciles and rewrites documents.
type Syncer struct {
	store  storage.Provider
	db     index.DocumentIndex
	run    runner.Runner
	defs   notebook.Defaults
	logger *slog.Logger
	notify EventCallback
}

// New creates a Syncer. db and notify may be nil (no journal, no events).
func New(store storage.Provider, db index.DocumentIndex, run runner.Runner, defs notebook.Defaults, logger *slog.Logger, notify EventCallback) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: store, db: db, run: run, defs: defs, logger: logger, notify: notify}
}

// SyncAll runs one pass over every document stem present in the workspace.
// Per-document failures are isolated: they are logged, journaled, and
// counted, and the pass continues with the next name.
func (s *Syncer) SyncAll(ctx context.Context) (*Result, error) {
	metas, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("sync: list workspace: %w", err)
	}

	res := &Result{}
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++
		outcome, err := s.SyncOne(ctx, m.Name)
		switch {
		case err != nil:
			res.Failed = append(res.Failed, m.Name)
			s.logger.Error("sync: document failed", slog.String("name", m.Name), slog.String("error", err.Error()))
			s.emit("failed", m.Name)
		case outcome.Conflict():
			res.Conflicts = append(res.Conflicts, m.Name)
			s.emit("conflict", m.Name)
		default:
			s.emit("synced", m.Name)
		}
	}

	s.prune(metas)
	return res, nil
}

// prune removes index rows for documents that no longer exist on disk, so
// search stops surfacing deleted documents.
func (s *Syncer) prune(metas []models.DocumentMetadata) {
	if s.db == nil {
		return
	}
	checksums, err := s.db.AllChecksums()
	if err != nil {
		s.logger.Warn("sync: prune listing failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Name] = struct{}{}
	}
	for name := range checksums {
		if _, ok := disk[name]; ok {
			continue
		}
		if err := s.db.DeleteDocument(name); err != nil {
			s.logger.Warn("sync: prune failed", slog.String("name", name), slog.String("error", err.Error()))
		} else {
			s.logger.Info("sync: removed stale index entry", slog.String("name", name))
		}
	}
}

// SyncOne reconciles a single document stem and rewrites both forms from the
// authoritative side. The returned error always names the document.
func (s *Syncer) SyncOne(ctx context.Context, name string) (reconcile.Outcome, error) {
	nbData, err := s.readIfPresent(s.store.ReadNotebook, name)
	if err != nil {
		return "", s.fail(name, err)
	}
	scriptData, err := s.readIfPresent(s.store.ReadScript, name)
	if err != nil {
		return "", s.fail(name, err)
	}

	res, err := reconcile.Reconcile(name, nbData, scriptData, s.defs)
	if err != nil {
		return "", s.fail(name, err)
	}
	if res == nil {
		// Neither form exists; drop any stale index row for the name.
		if s.db != nil {
			if err := s.db.DeleteDocument(name); err != nil {
				s.logger.Warn("sync: prune failed", slog.String("name", name), slog.String("error", err.Error()))
			}
		}
		return reconcile.NoChange, nil
	}

	s.report(name, res.Outcome)

	// Execute before writing the structured form, so captured outputs land
	// in it. A failed execution skips write-back entirely: a partially
	// executed notebook must not be persisted.
	doc, err := s.run.Run(ctx, res.Doc)
	if err != nil {
		return "", s.fail(name, err)
	}

	nbOut, err := notebook.Encode(doc, s.defs)
	if err != nil {
		return "", s.fail(name, err)
	}
	if err := s.writeIfChanged(s.store.WriteNotebook, name, nbData, nbOut); err != nil {
		return "", s.fail(name, err)
	}

	// The flat header always holds the fingerprint of the structured form
	// just written, keeping both artifacts and the embedded reference
	// mutually consistent even on the no-change path.
	fresh := fingerprint.Compute(doc.Contents())
	flatOut := []byte(script.Encode(fresh, doc.Chunks))
	if err := s.writeIfChanged(s.store.WriteScript, name, scriptData, flatOut); err != nil {
		return "", s.fail(name, err)
	}

	s.journal(name, res, "")
	s.indexDocument(doc, fresh, res.Outcome)
	return res.Outcome, nil
}

func (s *Syncer) readIfPresent(read func(string) ([]byte, error), name string) ([]byte, error) {
	data, err := read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// writeIfChanged skips the physical write when the bytes already on disk are
// identical. The end state matches an unconditional rewrite; the skip keeps
// watch mode from reacting to its own writes.
func (s *Syncer) writeIfChanged(write func(string, []byte) error, name string, old, fresh []byte) error {
	if old != nil && bytes.Equal(old, fresh) {
		return nil
	}
	return write(name, fresh)
}

// fail wraps err with the document name, journals it, and passes it on.
func (s *Syncer) fail(name string, err error) error {
	wrapped := fmt.Errorf("%s: %w", name, err)
	s.journal(name, nil, wrapped.Error())
	return wrapped
}

func (s *Syncer) report(name string, outcome reconcile.Outcome) {
	switch outcome {
	case reconcile.StructuredWins:
		s.logger.Info("sync: notebook -> script", slog.String("name", name))
	case reconcile.FlatWins:
		s.logger.Info("sync: script -> notebook", slog.String("name", name))
	case reconcile.ConflictStructuredWins:
		s.logger.Warn("sync: conflict, both forms changed independently (notebook wins)",
			slog.String("name", name))
	case reconcile.NoChange:
		s.logger.Debug("sync: no change", slog.String("name", name))
	}
}

func (s *Syncer) journal(name string, res *reconcile.Result, errText string) {
	if s.db == nil {
		return
	}
	rec := index.HistoryRecord{Name: name, Error: errText, SyncedAt: time.Now()}
	if res != nil {
		rec.Outcome = string(res.Outcome)
		rec.RefHash = res.Ref
		rec.StructHash = res.StructHash
		rec.FlatHash = res.FlatHash
	}
	if err := s.db.AppendHistory(rec); err != nil {
		s.logger.Warn("sync: journal append failed", slog.String("name", name), slog.String("error", err.Error()))
	}
}

func (s *Syncer) indexDocument(doc *models.Document, checksum string, outcome reconcile.Outcome) {
	if s.db == nil {
		return
	}
	row := index.DocumentRow{
		Name:        doc.Name,
		Title:       doc.Title(),
		Checksum:    checksum,
		Chunks:      len(doc.Chunks),
		Executable:  doc.ExecutableCount(),
		LastOutcome: string(outcome),
		UpdatedAt:   time.Now(),
	}
	body := strings.Join(doc.Contents(), "\n")
	if err := s.db.UpsertDocument(row, body); err != nil {
		s.logger.Warn("sync: index upsert failed", slog.String("name", doc.Name), slog.String("error", err.Error()))
	}
}

func (s *Syncer) emit(kind, name string) {
	if s.notify != nil {
		s.notify(kind, name)
	}
}
