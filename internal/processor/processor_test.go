package processor

import (
	"bytes"
	"context"
	"image"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/imageq/image-resizer/internal/model"
	"github.com/imageq/image-resizer/internal/storage/file"
)

func saveTestImage(t *testing.T, storage *file.Storage, filename string, format imaging.Format, w, h int) string {
	t.Helper()

	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, image.NewRGBA(image.Rect(0, 0, w, h)), format); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}

	path, err := storage.Save(context.Background(), "uploads", filename, buf)
	if err != nil {
		t.Fatalf("failed to save test image: %v", err)
	}
	return path
}

func TestResize(t *testing.T) {
	storage := file.NewStorage(t.TempDir())
	p := New(storage)

	id := uuid.New()
	filename := id.String() + ".png"
	path := saveTestImage(t, storage, filename, imaging.PNG, 64, 48)

	task := model.Task{ID: id, Filename: filename, Path: path, Width: 10, Height: 10}

	resultPath, err := p.Resize(context.Background(), task)
	if err != nil {
		t.Fatalf("Resize returned error: %v", err)
	}
	if !strings.HasSuffix(resultPath, filename) {
		t.Errorf("result path %q does not keep the task-derived filename", resultPath)
	}

	reader, err := storage.Load(context.Background(), resultPath)
	if err != nil {
		t.Fatalf("failed to load result: %v", err)
	}
	defer reader.Close()

	img, err := imaging.Decode(reader)
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 10 {
		t.Fatalf("result size = %dx%d, want 10x10", img.Bounds().Dx(), img.Bounds().Dy())
	}
}

func TestResizeRejectsInvalidDimensions(t *testing.T) {
	p := New(file.NewStorage(t.TempDir()))

	task := model.Task{ID: uuid.New(), Filename: "x.png", Path: "uploads/x.png", Width: 0, Height: 10}
	if _, err := p.Resize(context.Background(), task); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestResizeUndecodableInput(t *testing.T) {
	storage := file.NewStorage(t.TempDir())
	p := New(storage)

	id := uuid.New()
	filename := id.String() + ".jpg"
	path, err := storage.Save(context.Background(), "uploads", filename, bytes.NewReader([]byte("not an image")))
	if err != nil {
		t.Fatalf("failed to save input: %v", err)
	}

	task := model.Task{ID: id, Filename: filename, Path: path, Width: 10, Height: 10}
	if _, err := p.Resize(context.Background(), task); err == nil {
		t.Fatal("expected error for undecodable input")
	}
}

func TestResizeMissingInput(t *testing.T) {
	storage := file.NewStorage(t.TempDir())
	p := New(storage)

	task := model.Task{ID: uuid.New(), Filename: "gone.jpg", Path: "uploads/gone.jpg", Width: 10, Height: 10}
	if _, err := p.Resize(context.Background(), task); err == nil {
		t.Fatal("expected error for missing input artifact")
	}
}
