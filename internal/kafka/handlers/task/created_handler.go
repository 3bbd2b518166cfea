package task

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/imageq/image-resizer/internal/model"
)

// service defines the interface for processing queued resize tasks.
type service interface {
	ProcessTask(ctx context.Context, t model.Task) error
}

// CreatedHandler handles Kafka messages for newly submitted tasks.
type CreatedHandler struct {
	service service
}

// NewCreatedHandler creates a new handler with the given service.
func NewCreatedHandler(s service) *CreatedHandler {
	return &CreatedHandler{service: s}
}

// Handle processes a Kafka message containing a resize task descriptor.
// An error return means the message must be redelivered; a task that
// failed and was recorded as FAILURE is a handled message.
func (h *CreatedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var t model.Task
	if err := json.Unmarshal(msg.Value, &t); err != nil {
		return fmt.Errorf("unmarshal task: %w", err)
	}

	if err := h.service.ProcessTask(ctx, t); err != nil {
		return fmt.Errorf("process task: %w", err)
	}

	zlog.Logger.Info().Str("task_id", t.ID.String()).Msg("task processed")

	return nil
}
