package file

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
)

func TestSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	storage := NewStorage(t.TempDir())

	content := []byte("artifact bytes")
	path, err := storage.Save(ctx, "uploads", "a.jpg", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	reader, err := storage.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	got, err := io.ReadAll(reader)
	reader.Close()
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("loaded %q, want %q", got, content)
	}

	if err := storage.Delete(ctx, path); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("artifact still exists after Delete")
	}
}

func TestLoadMissing(t *testing.T) {
	storage := NewStorage(t.TempDir())

	if _, err := storage.Load(context.Background(), "uploads/missing.jpg"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSaveOverwrites(t *testing.T) {
	ctx := context.Background()
	storage := NewStorage(t.TempDir())

	if _, err := storage.Save(ctx, "results", "a.jpg", bytes.NewReader([]byte("first"))); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	path, err := storage.Save(ctx, "results", "a.jpg", bytes.NewReader([]byte("second")))
	if err != nil {
		t.Fatalf("second Save returned error: %v", err)
	}

	reader, err := storage.Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	defer reader.Close()

	got, _ := io.ReadAll(reader)
	if string(got) != "second" {
		t.Fatalf("loaded %q, want %q", got, "second")
	}
}
