package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalRoundTripAndDownload(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := store.Upload(ctx, "org/1/a.txt", strings.NewReader("hello"), "text/plain"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	ok, err := store.Exists(ctx, "org/1/a.txt")
	if err != nil || !ok {
		t.Fatalf("Exists: want=true got=%v err=%v", ok, err)
	}

	dst := filepath.Join(t.TempDir(), "nested", "a.txt")
	if err := Download(ctx, store, "org/1/a.txt", dst); err != nil {
		t.Fatalf("Download: %v", err)
	}
	raw, _ := os.ReadFile(dst)
	if string(raw) != "hello" {
		t.Fatalf("content: want=hello got=%q", raw)
	}

	if err := store.Delete(ctx, "org/1/a.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Open(ctx, "org/1/a.txt"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Open after delete: want ErrNotFound got=%v", err)
	}
}

func TestLocalRejectsEscapes(t *testing.T) {
	root := t.TempDir()
	store, _ := NewLocal(root)
	p, err := store.path("../../etc/passwd")
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	if !strings.HasPrefix(p, root) {
		t.Fatalf("path escaped root: %s", p)
	}
}

func TestDownloadMissingRemovesNothing(t *testing.T) {
	store, _ := NewLocal(t.TempDir())
	dst := filepath.Join(t.TempDir(), "x.bin")
	if err := Download(context.Background(), store, "missing", dst); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Download: want ErrNotFound got=%v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("dst should not exist")
	}
}
