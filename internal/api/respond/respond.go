package respond

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
)

// AcceptedResponse is the body returned when a task has been queued.
type AcceptedResponse struct {
	Status string    `json:"status"`
	TaskID uuid.UUID `json:"task_id"`
}

// StatusResponse reports the current lifecycle state of a task.
type StatusResponse struct {
	Status string `json:"status"`
}

// Error represents a standard structure for error responses.
type Error struct {
	Message string `json:"message"`
}

// JSON sends a JSON response with the specified HTTP status code and data.
func JSON(c *ginext.Context, status int, data interface{}) {
	c.JSON(status, data)
}

// Accepted sends a 202 Accepted JSON response carrying the task ID.
func Accepted(c *ginext.Context, taskID uuid.UUID) {
	JSON(c, http.StatusAccepted, AcceptedResponse{Status: "accepted", TaskID: taskID})
}

// Status sends a 200 OK JSON response with the task state.
func Status(c *ginext.Context, state string) {
	JSON(c, http.StatusOK, StatusResponse{Status: state})
}

// Stream streams binary data directly from an io.Reader as the HTTP response
// with the given content type.
func Stream(c *ginext.Context, status int, contentType string, reader io.Reader) {
	c.DataFromReader(status, -1, contentType, reader, nil)
}

// Fail sends an error JSON response with the specified HTTP status code.
// The error message is wrapped in an Error struct.
func Fail(c *ginext.Context, status int, err error) {
	JSON(c, status, Error{Message: err.Error()})
}
