package filestore

import (
	"io"
	"os"
	"strings"
	"testing"
)

func Test_SaveOpenRemove(t *testing.T) {
	t.Parallel()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	path, err := store.Save(1, "notes.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rc, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()
	if string(got) != "hello" {
		t.Errorf("payload = %q, want %q", got, "hello")
	}

	if err := store.RemoveInstance(1); err != nil {
		t.Fatalf("RemoveInstance failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("payload still present after RemoveInstance: %v", err)
	}
}

func Test_Save_WriteOnce(t *testing.T) {
	t.Parallel()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := store.Save(2, "dup.txt", strings.NewReader("a")); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if _, err := store.Save(2, "dup.txt", strings.NewReader("b")); err == nil {
		t.Error("second Save with the same name should fail")
	}
}

func Test_Save_StripsDirectoryComponents(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	store, err := New(root)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	path, err := store.Save(3, "../../escape.txt", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !strings.HasPrefix(path, root) {
		t.Errorf("stored path %q escaped the root %q", path, root)
	}
}
