// Package docservice coordinates storage, index, and syncer operations for
// the HTTP and MCP surfaces.
package docservice

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/index"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/notebook"
	"github.com/starford/nbsync/internal/reconcile"
	"github.com/starford/nbsync/internal/script"
	"github.com/starford/nbsync/internal/storage"
	"github.com/starford/nbsync/internal/syncer"
)

// DocumentDetail is the full representation of a document.
type DocumentDetail struct {
	Name        string         `json:"name"`
	Title       string         `json:"title"`
	Chunks      []models.Chunk `json:"chunks"`
	Checksum    string         `json:"checksum"`
	LastOutcome string         `json:"last_outcome,omitempty"`
	HasNotebook bool           `json:"has_notebook"`
	HasScript   bool           `json:"has_script"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// DocumentListItem is a lightweight item in a list response.
type DocumentListItem struct {
	Name        string    `json:"name"`
	Title       string    `json:"title"`
	Checksum    string    `json:"checksum"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	HasNotebook bool      `json:"has_notebook"`
	HasScript   bool      `json:"has_script"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Service coordinates workspace storage, the index, and the sync driver.
type Service struct {
	store storage.Provider
	db    index.DocumentIndex
	sync  *syncer.Syncer
	defs  notebook.Defaults
}

// NewService creates a new document service.
func NewService(store storage.Provider, db index.DocumentIndex, sync *syncer.Syncer, defs notebook.Defaults) *Service {
	return &Service{store: store, db: db, sync: sync, defs: defs}
}

// GetDocument loads a document from whichever form exists, preferring the
// structured one, and enriches it with index state.
func (s *Service) GetDocument(_ context.Context, name string) (*DocumentDetail, error) {
	doc, meta, err := s.load(name)
	if err != nil {
		return nil, err
	}

	detail := &DocumentDetail{
		Name:        name,
		Title:       doc.Title(),
		Chunks:      doc.Chunks,
		HasNotebook: meta.HasNotebook,
		HasScript:   meta.HasScript,
		UpdatedAt:   meta.UpdatedAt,
	}
	if row, rowErr := s.db.GetDocument(name); rowErr == nil {
		detail.Checksum = row.Checksum
		detail.LastOutcome = row.LastOutcome
	}
	return detail, nil
}

// FlatText renders a document in its flat form with the stored checksum as
// header, regardless of which forms exist on disk.
func (s *Service) FlatText(_ context.Context, name string) (string, error) {
	data, err := s.store.ReadScript(name)
	if err == nil {
		return string(data), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	doc, _, err := s.load(name)
	if err != nil {
		return "", err
	}
	ref := ""
	if row, rowErr := s.db.GetDocument(name); rowErr == nil {
		ref = row.Checksum
	}
	return script.Encode(ref, doc.Chunks), nil
}

// ListDocuments merges workspace presence with index state.
func (s *Service) ListDocuments(_ context.Context) ([]DocumentListItem, error) {
	metas, err := s.store.List()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.ListDocuments()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]index.DocumentRow, len(rows))
	for _, r := range rows {
		byName[r.Name] = r
	}

	items := make([]DocumentListItem, len(metas))
	for i, m := range metas {
		item := DocumentListItem{
			Name:        m.Name,
			Title:       m.Name,
			HasNotebook: m.HasNotebook,
			HasScript:   m.HasScript,
			UpdatedAt:   m.UpdatedAt,
		}
		if row, ok := byName[m.Name]; ok {
			item.Title = row.Title
			item.Checksum = row.Checksum
			item.LastOutcome = row.LastOutcome
		}
		items[i] = item
	}
	return items, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// History returns journal entries, optionally filtered by document name.
func (s *Service) History(_ context.Context, name string, limit int) ([]index.HistoryRecord, error) {
	return s.db.History(name, limit)
}

// Conflicts returns journal entries for conflicting or failed passes.
func (s *Service) Conflicts(_ context.Context, limit int) ([]index.HistoryRecord, error) {
	return s.db.Conflicts(limit)
}

// SyncAll runs one reconciliation pass over the whole workspace.
func (s *Service) SyncAll(ctx context.Context) (*syncer.Result, error) {
	return s.sync.SyncAll(ctx)
}

// SyncOne reconciles a single document. Unlike the underlying driver, a name
// with no form on disk is an error here, so callers can distinguish a missing
// document from a settled one.
func (s *Service) SyncOne(ctx context.Context, name string) (reconcile.Outcome, error) {
	metas, err := s.store.List()
	if err != nil {
		return "", err
	}
	found := false
	for _, m := range metas {
		if m.Name == name {
			found = true
			break
		}
	}
	if !found {
		return "", apperr.ErrNotFound
	}
	return s.sync.SyncOne(ctx, name)
}

// load reads a document from disk, preferring the structured form.
func (s *Service) load(name string) (*models.Document, *models.DocumentMetadata, error) {
	metas, err := s.store.List()
	if err != nil {
		return nil, nil, err
	}
	var meta *models.DocumentMetadata
	for i := range metas {
		if metas[i].Name == name {
			meta = &metas[i]
			break
		}
	}
	if meta == nil {
		return nil, nil, apperr.ErrNotFound
	}

	if meta.HasNotebook {
		data, err := s.store.ReadNotebook(name)
		if err != nil {
			return nil, nil, err
		}
		doc, err := notebook.Decode(name, data)
		if err != nil {
			return nil, nil, err
		}
		return doc, meta, nil
	}

	data, err := s.store.ReadScript(name)
	if err != nil {
		return nil, nil, err
	}
	_, blocks, err := script.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return notebook.FromChunks(name, script.Chunks(blocks), s.defs), meta, nil
}
