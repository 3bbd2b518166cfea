package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/imageq/image-resizer/internal/api/respond"
	"github.com/imageq/image-resizer/internal/model"
	"github.com/imageq/image-resizer/internal/repository/task"
	tasksvc "github.com/imageq/image-resizer/internal/service/task"
)

// maxUploadMemory bounds the in-memory part of multipart parsing.
const maxUploadMemory = 32 << 20

// service defines the interface for the task lifecycle operations.
type service interface {
	Submit(ctx context.Context, filename string, file io.Reader, width, height int) (uuid.UUID, error)
	Status(ctx context.Context, id uuid.UUID) (model.State, error)
	ConsumeResult(ctx context.Context, id uuid.UUID) (io.Reader, string, func(), error)
}

// Handler provides HTTP handlers for the resize task endpoints.
// It depends on a service interface to perform the business logic.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Resize handles the HTTP request for submitting a resize task.
// It reads the multipart form, validates it, and responds 202 with the
// generated task ID once the job is in the queue.
func (h *Handler) Resize(c *ginext.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to parse multipart form")
		respond.Fail(c, http.StatusUnprocessableEntity, fmt.Errorf("malformed form data"))
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("no file in request")
		respond.Fail(c, http.StatusUnprocessableEntity, fmt.Errorf("no file given"))
		return
	}
	defer file.Close()

	width, height, err := parseSize(c)
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("invalid size parameters")
		respond.Fail(c, http.StatusUnprocessableEntity, fmt.Errorf("invalid size"))
		return
	}

	id, err := h.service.Submit(c.Request.Context(), header.Filename, file, width, height)
	if err != nil {
		switch {
		case errors.Is(err, tasksvc.ErrNoFile),
			errors.Is(err, tasksvc.ErrInvalidExtension),
			errors.Is(err, tasksvc.ErrInvalidDimensions):
			zlog.Logger.Warn().Err(err).Str("filename", header.Filename).Msg("submission rejected")
			respond.Fail(c, http.StatusUnprocessableEntity, err)
		case errors.Is(err, task.ErrBackendUnavailable):
			zlog.Logger.Error().Err(err).Msg("queue backend unreachable")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("server error"))
		default:
			zlog.Logger.Err(err).Msg("failed to submit task")
			respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("server error"))
		}
		return
	}

	zlog.Logger.Info().Str("task_id", id.String()).Msg("task accepted")
	respond.Accepted(c, id)
}

// Result streams the finished artifact to the client exactly once.
// The artifact and its store entry are gone after the response, so any
// repeat request is a 404.
func (h *Handler) Result(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("result not found"))
		return
	}

	reader, contentType, cleanup, err := h.service.ConsumeResult(c.Request.Context(), id)
	if err != nil {
		zlog.Logger.Info().Str("task_id", id.String()).Msg("result not available")
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("result not found"))
		return
	}
	// Cleanup must run however the stream ends, including a client
	// disconnect mid-transfer.
	defer cleanup()

	respond.Stream(c, http.StatusOK, contentType, reader)
}

// Status reports the current state of a task, or 404 when the task is
// wholly unknown.
func (h *Handler) Status(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("task not found"))
		return
	}

	state, err := h.service.Status(c.Request.Context(), id)
	if err != nil {
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("task not found"))
		return
	}

	respond.Status(c, string(state))
}

// parseSize reads width and height from the form, falling back to query
// parameters, and requires both to be present and numeric.
func parseSize(c *ginext.Context) (int, int, error) {
	widthStr := c.PostForm("width")
	if widthStr == "" {
		widthStr = c.Query("width")
	}
	heightStr := c.PostForm("height")
	if heightStr == "" {
		heightStr = c.Query("height")
	}

	width, err := strconv.Atoi(widthStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q", widthStr)
	}

	height, err := strconv.Atoi(heightStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q", heightStr)
	}

	return width, height, nil
}
