package persistence

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"noeta/internal/config"
	"noeta/internal/events"
	"noeta/internal/notes"
	"noeta/internal/rulestore"
	"noeta/internal/term"
)

func parse(t *testing.T, s string) term.Term {
	t.Helper()
	tm, err := term.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return tm
}

func sampleSnapshot(t *testing.T) Snapshot {
	noteStore := notes.NewStore()
	noteStore.Put(&notes.Note{ID: "n1", Title: "Groceries", Text: "milk", Status: notes.StatusOpen})

	assertions := []*events.Assertion{
		{
			ID: "a1", Kif: parse(t, "(likes tom jerry)"), Priority: 1.0, Timestamp: 3,
			SourceID: "user", SourceNoteID: "", Type: events.Ground, KB: "kb://global",
		},
		{
			ID: "a2", Kif: parse(t, "(not (likes tom spike))"), Priority: 1.0, Timestamp: 4,
			SourceID: "user", Type: events.Negation, KB: "kb://global",
		},
	}

	rules := rulestore.New(nil)
	rs, err := rules.AddFromForm(parse(t, "(=> (likes ?x ?y) (friend ?x ?y))"), 0.5, "n1")
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}

	return BuildSnapshot(noteStore, assertions, rs, config.DefaultConfig())
}

func TestJSONFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	store := NewJSONFileStore(path)

	want := sampleSnapshot(t)
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	assertSnapshotsEqual(t, want, got)
}

func TestJSONFileStoreLoadMissingFileReturnsEmptySnapshot(t *testing.T) {
	store := NewJSONFileStore(filepath.Join(t.TempDir(), "absent.json"))
	snap, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Notes) != 0 || len(snap.Assertions) != 0 || len(snap.Rules) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	want := sampleSnapshot(t)
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	assertSnapshotsEqual(t, want, got)
}

func TestSQLiteStoreSaveIsUpsert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.db")
	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	first := sampleSnapshot(t)
	if err := store.Save(first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := first
	second.Notes = append([]NoteRecord{}, first.Notes...)
	second.Notes = append(second.Notes, NoteRecord{ID: "n2", Title: "Second", Status: "open"})
	if err := store.Save(second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Notes) != 2 {
		t.Fatalf("expected second save to overwrite rather than append, got %d notes", len(got.Notes))
	}
}

func assertSnapshotsEqual(t *testing.T, want, got Snapshot) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot round trip mismatch (-want +got):\n%s", diff)
	}
}
