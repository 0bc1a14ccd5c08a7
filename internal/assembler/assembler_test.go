package assembler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrepareSparse_PreSizesFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	f, err := PrepareSparse(dest, 1024)
	if err != nil {
		t.Fatalf("PrepareSparse: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 1024 {
		t.Errorf("expected pre-sized length 1024, got %d", info.Size())
	}
	if _, err := os.Stat(dest + ".part"); err != nil {
		t.Errorf("expected working file at %s.part: %v", dest, err)
	}
}

func TestPrepareStream_TruncatesExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	working := dest + ".part"
	if err := os.WriteFile(working, []byte("stale contents"), 0o644); err != nil {
		t.Fatalf("seed working file: %v", err)
	}

	f, err := PrepareStream(dest)
	if err != nil {
		t.Fatalf("PrepareStream: %v", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected PrepareStream to truncate stale contents, size=%d", info.Size())
	}
}

func TestFinalize_RenamesToDestPath(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	f, err := PrepareSparse(dest, 5)
	if err != nil {
		t.Fatalf("PrepareSparse: %v", err)
	}
	if _, err := f.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := Finalize(f, dest, 5); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read final file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected contents %q, got %q", "hello", data)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("expected working file to be gone after Finalize, err=%v", err)
	}
}

func TestFinalize_RaceOnRenameIsBenignWhenDestAlreadyCorrect(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	// Simulate a concurrent finalize already having completed: the dest
	// file exists with the expected size, and the working file is gone.
	if err := os.WriteFile(dest, []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed dest: %v", err)
	}

	f, err := os.CreateTemp(t.TempDir(), "ghost")
	if err != nil {
		t.Fatalf("create temp working file: %v", err)
	}

	if err := Finalize(f, dest, 5); err != nil {
		t.Errorf("expected benign race recovery, got error: %v", err)
	}
}

func TestAbandon_RemovesWorkingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	f, err := PrepareSparse(dest, 10)
	if err != nil {
		t.Fatalf("PrepareSparse: %v", err)
	}
	f.Close()

	if err := Abandon(dest); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("expected working file removed, err=%v", err)
	}
}

func TestAbandon_MissingFileIsNotAnError(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "never-created.bin")
	if err := Abandon(dest); err != nil {
		t.Errorf("expected no error abandoning a file that was never created, got %v", err)
	}
}
