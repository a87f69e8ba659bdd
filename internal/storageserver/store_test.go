package storageserver

import (
	"testing"

	"scribe.io/errors"
	"scribe.io/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), config.Default())
}

func TestCreateFileThenRead(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateFile("notes.txt", "alice"); err != nil {
		t.Fatal(err)
	}
	body, err := s.ReadFile("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		t.Errorf("body = %q, want empty", body)
	}
}

func TestCreateFileDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateFile("notes.txt", "alice"); err != nil {
		t.Fatal(err)
	}
	err := s.CreateFile("notes.txt", "alice")
	if !errors.Is(errors.FileExists, err) {
		t.Fatalf("got %v, want FileExists", err)
	}
}

func TestReadFileReloadsAfterRestart(t *testing.T) {
	dir := t.TempDir()
	s1 := NewStore(dir, config.Default())
	if err := s1.CreateFile("notes.txt", "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := s1.LockSentence("notes.txt", 0, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := s1.WriteWord("notes.txt", 0, 0, "Hello", "alice"); err != nil {
		t.Fatal(err)
	}

	s2 := NewStore(dir, config.Default())
	body, err := s2.ReadFile("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if body != "Hello" {
		t.Errorf("body = %q, want %q", body, "Hello")
	}
}

func TestLockSentenceRejectsOtherUser(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	if _, err := s.LockSentence("notes.txt", 0, "alice"); err != nil {
		t.Fatal(err)
	}
	_, err := s.LockSentence("notes.txt", 0, "bob")
	if !errors.Is(errors.SentenceLocked, err) {
		t.Fatalf("got %v, want SentenceLocked", err)
	}
}

func TestLockSentenceSameUserReentrant(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	if _, err := s.LockSentence("notes.txt", 0, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LockSentence("notes.txt", 0, "alice"); err != nil {
		t.Fatalf("same user relocking should succeed, got %v", err)
	}
}

func TestUnlockRejectsMismatchedUser(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	s.LockSentence("notes.txt", 0, "alice")
	err := s.UnlockSentence("notes.txt", 0, "bob")
	if !errors.Is(errors.PermissionDenied, err) {
		t.Fatalf("got %v, want PermissionDenied", err)
	}
}

func TestWriteWordRequiresActiveLock(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	err := s.WriteWord("notes.txt", 0, 0, "Hi", "alice")
	if !errors.Is(errors.PermissionDenied, err) {
		t.Fatalf("got %v, want PermissionDenied", err)
	}
}

func TestWriteWordThenUndo(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	s.LockSentence("notes.txt", 0, "alice")
	if err := s.WriteWord("notes.txt", 0, 0, "Hello", "alice"); err != nil {
		t.Fatal(err)
	}
	body, _ := s.ReadFile("notes.txt")
	if body != "Hello" {
		t.Fatalf("body = %q", body)
	}
	if err := s.UndoFile("notes.txt"); err != nil {
		t.Fatal(err)
	}
	body, _ = s.ReadFile("notes.txt")
	if body != "" {
		t.Errorf("body after undo = %q, want empty", body)
	}
}

func TestUndoFileWithoutPriorWriteFails(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	err := s.UndoFile("notes.txt")
	if !errors.Is(errors.UndoNotAvailable, err) {
		t.Fatalf("got %v, want UndoNotAvailable", err)
	}
}

func TestWriteWordInvalidIndexRejected(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	s.LockSentence("notes.txt", 0, "alice")
	err := s.WriteWord("notes.txt", 0, 5, "Hi", "alice")
	if !errors.Is(errors.InvalidWord, err) {
		t.Fatalf("got %v, want InvalidWord", err)
	}
}

func TestEtirwLocksWritesAndUnlocks(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	if err := s.Etirw("notes.txt", 0, 0, "Hi", "alice"); err != nil {
		t.Fatal(err)
	}
	if s.Locks.Len() != 0 {
		t.Errorf("Locks.Len() = %d, want 0 after ETIRW", s.Locks.Len())
	}
	_, err := s.LockSentence("notes.txt", 0, "bob")
	if err != nil {
		t.Fatalf("sentence should be unlocked after ETIRW, got %v", err)
	}
}

func TestCleanupUserLocksReleasesAll(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	s.LockSentence("notes.txt", 0, "alice")
	s.CleanupUserLocks("alice")
	if s.Locks.Len() != 0 {
		t.Errorf("Locks.Len() = %d, want 0", s.Locks.Len())
	}
	_, err := s.LockSentence("notes.txt", 0, "bob")
	if err != nil {
		t.Fatalf("lock should be released, got %v", err)
	}
}

func TestCheckpointCreateViewRevert(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	s.LockSentence("notes.txt", 0, "alice")
	s.WriteWord("notes.txt", 0, 0, "Hello", "alice")

	if err := s.CreateCheckpoint("notes.txt", "v1"); err != nil {
		t.Fatal(err)
	}
	s.UnlockSentence("notes.txt", 0, "alice")
	s.LockSentence("notes.txt", 0, "alice")
	if err := s.WriteWord("notes.txt", 0, 0, "Goodbye", "alice"); err != nil {
		t.Fatal(err)
	}

	view, err := s.ViewCheckpoint("notes.txt", "v1")
	if err != nil {
		t.Fatal(err)
	}
	if view != "Hello" {
		t.Errorf("checkpoint view = %q, want %q", view, "Hello")
	}

	if err := s.RevertFile("notes.txt", "v1"); err != nil {
		t.Fatal(err)
	}
	body, _ := s.ReadFile("notes.txt")
	if body != "Hello" {
		t.Errorf("body after revert = %q, want %q", body, "Hello")
	}
}

func TestCreateCheckpointDuplicateTagRejected(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	if err := s.CreateCheckpoint("notes.txt", "v1"); err != nil {
		t.Fatal(err)
	}
	err := s.CreateCheckpoint("notes.txt", "v1")
	if !errors.Is(errors.CheckpointExists, err) {
		t.Fatalf("got %v, want CheckpointExists", err)
	}
}

func TestViewCheckpointMissingTagNotFound(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	_, err := s.ViewCheckpoint("notes.txt", "nope")
	if !errors.Is(errors.CheckpointNotFound, err) {
		t.Fatalf("got %v, want CheckpointNotFound", err)
	}
}

func TestListCheckpointsReturnsAllTags(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	s.CreateCheckpoint("notes.txt", "v1")
	s.CreateCheckpoint("notes.txt", "v2")

	tags, err := s.ListCheckpoints("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %v, want 2 entries", tags)
	}
}

func TestDeleteFileRemovesSidecars(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	if err := s.DeleteFile("notes.txt"); err != nil {
		t.Fatal(err)
	}
	_, err := s.ReadFile("notes.txt")
	if !errors.Is(errors.FileNotFound, err) {
		t.Fatalf("got %v, want FileNotFound", err)
	}
}

func TestInfoReportsCounts(t *testing.T) {
	s := newTestStore(t)
	s.CreateFile("notes.txt", "alice")
	s.LockSentence("notes.txt", 0, "alice")
	s.WriteWord("notes.txt", 0, 0, "Hello", "alice")

	owner, _, words, chars, err := s.Info("notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if owner != "alice" {
		t.Errorf("owner = %q", owner)
	}
	if words != 1 {
		t.Errorf("words = %d, want 1", words)
	}
	if chars != 5 {
		t.Errorf("chars = %d, want 5", chars)
	}
}
