package assembler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConcatenateFragments_OrdersByIndex(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	parts := []string{"hello, ", "world", "!"}
	for i, p := range parts {
		f, err := OpenFragment(dest, i)
		if err != nil {
			t.Fatalf("OpenFragment(%d): %v", i, err)
		}
		if _, err := f.WriteAt([]byte(p), 0); err != nil {
			t.Fatalf("write fragment %d: %v", i, err)
		}
		f.Close()
	}

	want := "hello, world!"
	if err := ConcatenateFragments(dest, len(parts), int64(len(want))); err != nil {
		t.Fatalf("ConcatenateFragments: %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read assembled file: %v", err)
	}
	if string(data) != want {
		t.Errorf("expected %q, got %q", want, data)
	}

	for i := range parts {
		if _, err := os.Stat(FragmentPath(dest, i)); !os.IsNotExist(err) {
			t.Errorf("expected fragment %d removed after concatenation, err=%v", i, err)
		}
	}
}

func TestAbandonFragments_RemovesAllAndWorkingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	for i := 0; i < 3; i++ {
		f, err := OpenFragment(dest, i)
		if err != nil {
			t.Fatalf("OpenFragment(%d): %v", i, err)
		}
		f.Close()
	}
	if err := os.WriteFile(dest+".part", []byte("x"), 0o644); err != nil {
		t.Fatalf("seed working file: %v", err)
	}

	if err := AbandonFragments(dest, 3); err != nil {
		t.Fatalf("AbandonFragments: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := os.Stat(FragmentPath(dest, i)); !os.IsNotExist(err) {
			t.Errorf("expected fragment %d removed, err=%v", i, err)
		}
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Errorf("expected working file removed, err=%v", err)
	}
}

func TestFragmentsExist(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.bin")
	if FragmentsExist(dest) {
		t.Error("expected no fragments to exist yet")
	}

	f, err := OpenFragment(dest, 0)
	if err != nil {
		t.Fatalf("OpenFragment: %v", err)
	}
	f.Close()

	if !FragmentsExist(dest) {
		t.Error("expected FragmentsExist to find the fragment just created")
	}
}
