package syncer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/nbsync/internal/apperr"
	"github.com/starford/nbsync/internal/fingerprint"
	"github.com/starford/nbsync/internal/models"
	"github.com/starford/nbsync/internal/notebook"
	"github.com/starford/nbsync/internal/reconcile"
	"github.com/starford/nbsync/internal/runner"
	"github.com/starford/nbsync/internal/script"
	"github.com/starford/nbsync/internal/storage"
	"github.com/starford/nbsync/internal/testutil"
)

var defs = notebook.Defaults{
	KernelName:      "python3",
	DisplayName:     "Python 3",
	Language:        "python",
	LanguageVersion: "3.10",
}

func testSyncer(t *testing.T) (*Syncer, storage.Provider) {
	t.Helper()
	_, store := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	s := New(store, db, runner.Disabled{}, defs, slog.Default(), nil)
	return s, store
}

func writeNotebook(t *testing.T, store storage.Provider, name string, contents ...string) {
	t.Helper()
	chunks := make([]models.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = models.Chunk{Kind: models.Executable, Content: c}
	}
	data, err := notebook.Encode(notebook.FromChunks(name, chunks, defs), defs)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.WriteNotebook(name, data); err != nil {
		t.Fatal(err)
	}
}

func writeScript(t *testing.T, store storage.Provider, name, ref string, contents ...string) {
	t.Helper()
	chunks := make([]models.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = models.Chunk{Kind: models.Executable, Content: c}
	}
	if err := store.WriteScript(name, []byte(script.Encode(ref, chunks))); err != nil {
		t.Fatal(err)
	}
}

func scriptChunks(t *testing.T, store storage.Provider, name string) (string, []models.Chunk) {
	t.Helper()
	data, err := store.ReadScript(name)
	if err != nil {
		t.Fatalf("ReadScript: %v", err)
	}
	ref, blocks, err := script.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ref, script.Chunks(blocks)
}

// First sync with only a structured form: the flat form appears with a
// header fingerprint matching the structured chunk contents.
func TestSyncOne_FirstExport(t *testing.T) {
	s, store := testSyncer(t)
	writeNotebook(t, store, "demo", "print(1)", "x = 2")

	outcome, err := s.SyncOne(context.Background(), "demo")
	if err != nil {
		t.Fatalf("SyncOne: %v", err)
	}
	if outcome != reconcile.StructuredWins {
		t.Errorf("outcome = %s, want %s", outcome, reconcile.StructuredWins)
	}

	ref, chunks := scriptChunks(t, store, "demo")
	if ref != fingerprint.Compute([]string{"print(1)", "x = 2"}) {
		t.Errorf("header ref = %q, want fingerprint of structured contents", ref)
	}
	if len(chunks) != 2 || chunks[0].Content != "print(1)" || chunks[1].Content != "x = 2" {
		t.Errorf("flat chunks = %+v", chunks)
	}
}

// First sync with only a flat form: the notebook appears with default
// kernel metadata and the same chunk projection.
func TestSyncOne_FirstImport(t *testing.T) {
	s, store := testSyncer(t)
	writeScript(t, store, "imported", "", "print('hi')")

	outcome, err := s.SyncOne(context.Background(), "imported")
	if err != nil {
		t.Fatalf("SyncOne: %v", err)
	}
	if outcome != reconcile.FlatWins {
		t.Errorf("outcome = %s, want %s", outcome, reconcile.FlatWins)
	}

	data, err := store.ReadNotebook("imported")
	if err != nil {
		t.Fatalf("ReadNotebook: %v", err)
	}
	doc, err := notebook.Decode("imported", data)
	if err != nil {
		t.Fatalf("notebook.Decode: %v", err)
	}
	if len(doc.Chunks) != 1 || doc.Chunks[0].Content != "print('hi')" {
		t.Errorf("notebook chunks = %+v", doc.Chunks)
	}
	if !strings.Contains(string(doc.Metadata), "python3") {
		t.Errorf("notebook metadata missing kernel defaults: %s", doc.Metadata)
	}
}

func TestSyncOne_DirectionalPropagation(t *testing.T) {
	s, store := testSyncer(t)
	ctx := context.Background()

	// Converge a pair.
	writeNotebook(t, store, "doc", "print(1)")
	if _, err := s.SyncOne(ctx, "doc"); err != nil {
		t.Fatal(err)
	}

	// Edit only the structured side.
	writeNotebook(t, store, "doc", "print(2)")
	outcome, err := s.SyncOne(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != reconcile.StructuredWins {
		t.Errorf("notebook edit: outcome = %s, want %s", outcome, reconcile.StructuredWins)
	}
	if _, chunks := scriptChunks(t, store, "doc"); chunks[0].Content != "print(2)" {
		t.Errorf("flat form not updated: %+v", chunks)
	}

	// Edit only the flat side, keeping its converged header.
	ref := fingerprint.Compute([]string{"print(2)"})
	writeScript(t, store, "doc", ref, "print(3)")
	outcome, err = s.SyncOne(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != reconcile.FlatWins {
		t.Errorf("script edit: outcome = %s, want %s", outcome, reconcile.FlatWins)
	}
	data, _ := store.ReadNotebook("doc")
	doc, _ := notebook.Decode("doc", data)
	if doc.Chunks[0].Content != "print(3)" {
		t.Errorf("structured form not updated: %+v", doc.Chunks)
	}
}

// The concrete conflict scenario: notebook edited to print(3) while the
// script was edited to print(2), both from a converged print(1) state.
// The notebook wins and the script is rewritten with a fresh header.
func TestSyncOne_ConflictScenario(t *testing.T) {
	s, store := testSyncer(t)
	ctx := context.Background()

	oldRef := fingerprint.Compute([]string{"print(1)"})
	writeNotebook(t, store, "doc", "print(3)")
	writeScript(t, store, "doc", oldRef, "print(2)")

	outcome, err := s.SyncOne(ctx, "doc")
	if err != nil {
		t.Fatalf("SyncOne: %v", err)
	}
	if outcome != reconcile.ConflictStructuredWins {
		t.Errorf("outcome = %s, want %s", outcome, reconcile.ConflictStructuredWins)
	}

	data, _ := store.ReadNotebook("doc")
	doc, _ := notebook.Decode("doc", data)
	if doc.Chunks[0].Content != "print(3)" {
		t.Errorf("structured content = %q, want print(3)", doc.Chunks[0].Content)
	}
	ref, chunks := scriptChunks(t, store, "doc")
	if chunks[0].Content != "print(3)" {
		t.Errorf("flat content = %q, want print(3)", chunks[0].Content)
	}
	if ref != fingerprint.Compute([]string{"print(3)"}) {
		t.Errorf("flat header = %q, want fresh digest of print(3)", ref)
	}
}

// Two passes with no edits in between: the second pass classifies
// no-change and both artifacts stay byte-identical.
func TestSyncAll_Idempotent(t *testing.T) {
	s, store := testSyncer(t)
	ctx := context.Background()

	writeNotebook(t, store, "a", "print(1)")
	writeScript(t, store, "b", "", "x = 1", `"""not really narrative`)

	if _, err := s.SyncAll(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	nbA1, _ := store.ReadNotebook("a")
	pyA1, _ := store.ReadScript("a")
	nbB1, _ := store.ReadNotebook("b")
	pyB1, _ := store.ReadScript("b")

	res, err := s.SyncAll(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if res.Err() != nil {
		t.Fatalf("second pass had failures: %v", res.Err())
	}

	outcome, err := s.SyncOne(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if outcome != reconcile.NoChange {
		t.Errorf("third sync of a = %s, want %s", outcome, reconcile.NoChange)
	}

	for _, cmp := range []struct {
		name   string
		before []byte
		read   func(string) ([]byte, error)
	}{
		{"a", nbA1, store.ReadNotebook},
		{"a", pyA1, store.ReadScript},
		{"b", nbB1, store.ReadNotebook},
		{"b", pyB1, store.ReadScript},
	} {
		after, err := cmp.read(cmp.name)
		if err != nil {
			t.Fatalf("read %s: %v", cmp.name, err)
		}
		if string(after) != string(cmp.before) {
			t.Errorf("%s changed between idempotent passes", cmp.name)
		}
	}
}

// One malformed document must not abort the rest of the pass.
func TestSyncAll_PerDocumentIsolation(t *testing.T) {
	s, store := testSyncer(t)
	ctx := context.Background()

	writeNotebook(t, store, "good", "print(1)")
	if err := store.WriteNotebook("bad", []byte("{this is not json")); err != nil {
		t.Fatal(err)
	}

	res, err := s.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "bad" {
		t.Errorf("failed = %v, want [bad]", res.Failed)
	}
	if res.Err() == nil {
		t.Error("Result.Err() should be non-nil when a document failed")
	}
	// The good document still synced.
	if _, err := store.ReadScript("good"); err != nil {
		t.Errorf("good document was not synced: %v", err)
	}
}

func TestSyncAll_EventsAndJournal(t *testing.T) {
	_, store := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	var events []string
	s := New(store, db, runner.Disabled{}, defs, slog.Default(), func(kind, name string) {
		events = append(events, kind+":"+name)
	})
	ctx := context.Background()

	oldRef := fingerprint.Compute([]string{"print(1)"})
	writeNotebook(t, store, "clash", "print(3)")
	writeScript(t, store, "clash", oldRef, "print(2)")
	writeNotebook(t, store, "plain", "pass")

	if _, err := s.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	joined := strings.Join(events, " ")
	if !strings.Contains(joined, "conflict:clash") || !strings.Contains(joined, "synced:plain") {
		t.Errorf("events = %v", events)
	}

	conflicts, err := db.Conflicts(10)
	if err != nil {
		t.Fatalf("Conflicts: %v", err)
	}
	if len(conflicts) != 1 || conflicts[0].Name != "clash" {
		t.Errorf("journal conflicts = %+v", conflicts)
	}
	row, err := db.GetDocument("plain")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if row.LastOutcome != string(reconcile.StructuredWins) {
		t.Errorf("plain outcome = %q", row.LastOutcome)
	}
}

// A notebook whose cell source carries a trailing newline settles on the
// first pass: the trimmed content is what both forms fingerprint, so the
// second pass is a no-op on both artifacts.
func TestSyncAll_IdempotentWithTrailingNewline(t *testing.T) {
	s, store := testSyncer(t)
	ctx := context.Background()

	writeNotebook(t, store, "nl", "print(1)\n")

	if _, err := s.SyncAll(ctx); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	nb1, _ := store.ReadNotebook("nl")
	py1, _ := store.ReadScript("nl")

	outcome, err := s.SyncOne(ctx, "nl")
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if outcome != reconcile.NoChange {
		t.Errorf("second pass outcome = %s, want %s", outcome, reconcile.NoChange)
	}
	nb2, _ := store.ReadNotebook("nl")
	py2, _ := store.ReadScript("nl")
	if string(nb1) != string(nb2) {
		t.Error("notebook changed between passes")
	}
	if string(py1) != string(py2) {
		t.Error("script changed between passes")
	}
	_, chunks := scriptChunks(t, store, "nl")
	if chunks[0].Content != "print(1)" {
		t.Errorf("flat content = %q, want print(1)", chunks[0].Content)
	}
}

// Deleting both artifacts removes the document from the index on the next
// pass, so search stops returning it.
func TestSyncAll_PrunesDeletedDocuments(t *testing.T) {
	dir, store := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	s := New(store, db, runner.Disabled{}, defs, slog.Default(), nil)
	ctx := context.Background()

	writeNotebook(t, store, "gone", "rare_token = 1")
	if _, err := s.SyncAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetDocument("gone"); err != nil {
		t.Fatalf("document not indexed: %v", err)
	}

	for _, f := range []string{"gone.ipynb", "gone.py"} {
		if err := os.Remove(filepath.Join(dir, f)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.SyncAll(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := db.GetDocument("gone"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	hits, err := db.Search("rare_token", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("search still returns pruned document: %+v", hits)
	}
}

// Watch mode syncs single names; a name whose artifacts are both gone also
// drops its index row without waiting for a full pass.
func TestSyncOne_RemovedDocumentDropsIndexRow(t *testing.T) {
	dir, store := testutil.TestWorkspace(t)
	db := testutil.TestDB(t)
	s := New(store, db, runner.Disabled{}, defs, slog.Default(), nil)
	ctx := context.Background()

	writeNotebook(t, store, "fleeting", "pass")
	if _, err := s.SyncOne(ctx, "fleeting"); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"fleeting.ipynb", "fleeting.py"} {
		if err := os.Remove(filepath.Join(dir, f)); err != nil {
			t.Fatal(err)
		}
	}

	outcome, err := s.SyncOne(ctx, "fleeting")
	if err != nil {
		t.Fatalf("SyncOne: %v", err)
	}
	if outcome != reconcile.NoChange {
		t.Errorf("outcome = %s, want %s", outcome, reconcile.NoChange)
	}
	if _, err := db.GetDocument("fleeting"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
