package task

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/imageq/image-resizer/internal/model"
	"github.com/imageq/image-resizer/internal/repository/task"
)

var (
	ErrNoFile            = errors.New("no file given")
	ErrInvalidExtension  = errors.New("invalid extension")
	ErrInvalidDimensions = errors.New("invalid size")
)

// sniffLen is how many leading bytes of a result artifact are read to
// detect its content type before streaming.
const sniffLen = 512

// fileStorage defines the interface for storing artifacts (local FS or S3).
type fileStorage interface {
	Save(ctx context.Context, subdir, filename string, src io.Reader) (string, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// producer defines the interface for enqueueing tasks into a message broker.
type producer interface {
	Enqueue(ctx context.Context, t model.Task) error
}

// repository defines the interface for the task state store.
type repository interface {
	PutPlaceholder(ctx context.Context, id uuid.UUID) error
	GetState(ctx context.Context, id uuid.UUID) (model.State, error)
	MarkPending(ctx context.Context, id uuid.UUID) error
	SetResult(ctx context.Context, id uuid.UUID, path string) error
	SetFailure(ctx context.Context, id uuid.UUID, reason string) error
	TakeResult(ctx context.Context, id uuid.UUID) (string, error)
}

// processor defines the interface for the resize operation itself.
type processor interface {
	Resize(ctx context.Context, t model.Task) (string, error)
}

// Limits bounds what a submission may ask for.
type Limits struct {
	AllowedExtensions []string
	MaxDimension      int
}

// Service implements the task lifecycle: submission, status polling,
// one-shot result consumption and worker-side processing.
type Service struct {
	fileStorage fileStorage
	producer    producer
	repo        repository
	processor   processor
	limits      Limits
	allowed     map[string]struct{}
}

// NewService creates a new Service with the given collaborators.
func NewService(fs fileStorage, p producer, r repository, proc processor, limits Limits) *Service {
	allowed := make(map[string]struct{}, len(limits.AllowedExtensions))
	for _, ext := range limits.AllowedExtensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}

	return &Service{
		fileStorage: fs,
		producer:    p,
		repo:        r,
		processor:   proc,
		limits:      limits,
		allowed:     allowed,
	}
}

// Submit validates the upload, persists the input artifact under an
// ID-derived name and enqueues a resize task. The placeholder state is
// written only after the broker accepted the message, so a failed enqueue
// leaves no record behind.
//
// Returns ErrNoFile, ErrInvalidExtension or ErrInvalidDimensions for
// client mistakes and task.ErrBackendUnavailable when the broker is down.
func (s *Service) Submit(ctx context.Context, filename string, file io.Reader, width, height int) (uuid.UUID, error) {
	if filename == "" || file == nil {
		return uuid.Nil, ErrNoFile
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if _, ok := s.allowed[ext]; !ok {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidExtension, filepath.Ext(filename))
	}

	if width <= 0 || height <= 0 ||
		width > s.limits.MaxDimension || height > s.limits.MaxDimension {
		return uuid.Nil, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	// The stored name is derived from the generated ID, never from the
	// client-supplied filename, which rules out collisions and traversal.
	id := uuid.New()
	stored := fmt.Sprintf("%s.%s", id, ext)

	path, err := s.fileStorage.Save(ctx, "uploads", stored, file)
	if err != nil {
		return uuid.Nil, fmt.Errorf("submit: failed to save file: %w", err)
	}

	t := model.Task{
		ID:       id,
		Filename: stored,
		Path:     path,
		Width:    width,
		Height:   height,
	}

	if err := s.producer.Enqueue(ctx, t); err != nil {
		// The job will never be claimed, remove the orphaned artifact.
		if derr := s.fileStorage.Delete(ctx, path); derr != nil {
			zlog.Logger.Err(derr).Str("path", path).Msg("failed to remove orphaned upload")
		}

		return uuid.Nil, fmt.Errorf("submit: enqueue: %w: %v", task.ErrBackendUnavailable, err)
	}

	if err := s.repo.PutPlaceholder(ctx, id); err != nil {
		// The task is already in flight; the worker will materialize the
		// state on claim. Report the ID anyway.
		zlog.Logger.Err(err).Str("task_id", id.String()).Msg("failed to write placeholder state")
	}

	return id, nil
}

// Status returns the current state of a task. An unknown ID and an
// unreachable store both surface as task.ErrTaskNotFound; the outage is
// visible in logs only.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (model.State, error) {
	state, err := s.repo.GetState(ctx, id)
	if err != nil {
		zlog.Logger.Err(err).Str("task_id", id.String()).Msg("failed to read task state")
		return model.StateUnknown, task.ErrTaskNotFound
	}

	if state == model.StateUnknown {
		return model.StateUnknown, task.ErrTaskNotFound
	}

	return state, nil
}

// ConsumeResult atomically takes the result reference and opens the
// artifact for streaming. Every miss — unknown ID, task still running,
// failed task, result already consumed — is task.ErrResultNotFound.
//
// The returned cleanup closes the reader and removes the artifact; callers
// must defer it so cleanup runs however the response stream terminates.
func (s *Service) ConsumeResult(ctx context.Context, id uuid.UUID) (io.Reader, string, func(), error) {
	path, err := s.repo.TakeResult(ctx, id)
	if err != nil {
		if !errors.Is(err, task.ErrResultNotFound) {
			zlog.Logger.Err(err).Str("task_id", id.String()).Msg("failed to take task result")
		}

		return nil, "", nil, task.ErrResultNotFound
	}

	reader, err := s.fileStorage.Load(ctx, path)
	if err != nil {
		zlog.Logger.Err(err).Str("path", path).Msg("result artifact missing from storage")
		return nil, "", nil, task.ErrResultNotFound
	}

	// The result reference is already invalidated, so the artifact must go
	// even when the request context was canceled mid-stream by a client
	// disconnect.
	cleanupCtx := context.WithoutCancel(ctx)
	cleanup := func() {
		if err := reader.Close(); err != nil {
			zlog.Logger.Err(err).Str("path", path).Msg("failed to close result artifact")
		}
		if err := s.fileStorage.Delete(cleanupCtx, path); err != nil {
			zlog.Logger.Err(err).Str("path", path).Msg("failed to delete result artifact")
		}
	}

	// Sniff the content type from the stream head, then stitch the
	// consumed bytes back in front of the remainder.
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		cleanup()
		return nil, "", nil, task.ErrResultNotFound
	}
	head = head[:n]

	contentType := mimetype.Detect(head).String()

	return io.MultiReader(bytes.NewReader(head), reader), contentType, cleanup, nil
}

// ProcessTask runs on the worker side: it claims the task, performs the
// resize and records the terminal state. A resize failure is recorded as
// FAILURE and reported as handled; only infrastructure errors propagate so
// the broker redelivers the message.
func (s *Service) ProcessTask(ctx context.Context, t model.Task) error {
	if err := s.repo.MarkPending(ctx, t.ID); err != nil {
		return fmt.Errorf("mark pending: %w", err)
	}

	resultPath, resizeErr := s.processor.Resize(ctx, t)

	// The input artifact is no longer needed regardless of outcome.
	if err := s.fileStorage.Delete(ctx, t.Path); err != nil {
		zlog.Logger.Err(err).Str("path", t.Path).Msg("failed to delete input artifact")
	}

	if resizeErr != nil {
		zlog.Logger.Err(resizeErr).Str("task_id", t.ID.String()).Msg("resize failed")

		if err := s.repo.SetFailure(ctx, t.ID, resizeErr.Error()); err != nil {
			return fmt.Errorf("set failure: %w", err)
		}

		return nil
	}

	if err := s.repo.SetResult(ctx, t.ID, resultPath); err != nil {
		return fmt.Errorf("set result: %w", err)
	}

	return nil
}
