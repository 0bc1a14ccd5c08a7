package filenameutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUnique_NoCollisionReturnsSamePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.zip")
	if got := Unique(path); got != path {
		t.Errorf("expected unchanged path, got %s", got)
	}
}

func TestUnique_CollisionAppendsCounter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.zip")
	mustWrite(t, path)

	got := Unique(path)
	want := filepath.Join(dir, "file(1).zip")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestUnique_SkipsMultipleCollisions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.zip")
	mustWrite(t, path)
	mustWrite(t, filepath.Join(dir, "file(1).zip"))
	mustWrite(t, filepath.Join(dir, "file(2).zip"))

	got := Unique(path)
	want := filepath.Join(dir, "file(3).zip")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestUnique_CollidesWithPartFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.zip")
	mustWrite(t, path+IncompleteSuffix)

	got := Unique(path)
	want := filepath.Join(dir, "file(1).zip")
	if got != want {
		t.Errorf("expected collision with in-progress .part file to bump counter, got %s", got)
	}
}

func TestUnique_NoExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "README")
	mustWrite(t, path)

	got := Unique(path)
	want := filepath.Join(dir, "README(1)")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
