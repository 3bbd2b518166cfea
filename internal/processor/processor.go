package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/disintegration/imaging"

	"github.com/imageq/image-resizer/internal/model"
)

// fileStorage defines the interface for file storage.
// It allows saving and loading artifacts from a backend (e.g., local FS, S3, MinIO).
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
}

// Processor executes the resize operation for a task.
type Processor struct {
	fileStorage fileStorage
}

// New creates a new Processor with the given file storage backend.
func New(fs fileStorage) *Processor {
	return &Processor{fileStorage: fs}
}

// Resize loads the task's input artifact, resizes it to the requested
// dimensions and saves the result. The output keeps the input's format,
// derived from the file extension. Returns the path of the result artifact.
func (p *Processor) Resize(ctx context.Context, task model.Task) (string, error) {
	if task.Width <= 0 || task.Height <= 0 {
		return "", fmt.Errorf("invalid dimensions: %dx%d", task.Width, task.Height)
	}

	// Load the original image from storage.
	srcReader, err := p.fileStorage.Load(ctx, task.Path)
	if err != nil {
		return "", fmt.Errorf("failed to load original image: %w", err)
	}
	defer srcReader.Close()

	// Decode into an image object.
	img, err := imaging.Decode(srcReader)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	// Perform resizing.
	resized := imaging.Resize(img, task.Width, task.Height, imaging.Lanczos)

	format, err := imaging.FormatFromFilename(task.Filename)
	if err != nil {
		return "", fmt.Errorf("failed to detect output format: %w", err)
	}

	// Encode resized image into buffer for storage.
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, resized, format); err != nil {
		return "", fmt.Errorf("failed to encode resized image: %w", err)
	}

	// Save resized version.
	dst, err := p.fileStorage.Save(ctx, "results", task.Filename, buf)
	if err != nil {
		return "", fmt.Errorf("failed to save resized image: %w", err)
	}

	return dst, nil
}
