package model

import "github.com/google/uuid"

// Task represents a resize job that will be sent to the queue.
// The ID is generated at submit time, before the broker has accepted
// the message, so a client can reference the job immediately.
type Task struct {
	ID       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	Path     string    `json:"file_path"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
}
