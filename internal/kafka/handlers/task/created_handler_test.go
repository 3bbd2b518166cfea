package task

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/imageq/image-resizer/internal/model"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

type stubService struct {
	got model.Task
	err error
}

func (s *stubService) ProcessTask(ctx context.Context, t model.Task) error {
	s.got = t
	return s.err
}

func TestHandleDispatchesTask(t *testing.T) {
	svc := &stubService{}
	h := NewCreatedHandler(svc)

	want := model.Task{Filename: "abc.jpg", Path: "uploads/abc.jpg", Width: 10, Height: 20}
	value, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("failed to marshal task: %v", err)
	}

	if err := h.Handle(context.Background(), kafka.Message{Value: value}); err != nil {
		t.Fatalf("Handle returned error: %v", err)
	}
	if svc.got != want {
		t.Fatalf("service got %+v, want %+v", svc.got, want)
	}
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	h := NewCreatedHandler(&stubService{})

	if err := h.Handle(context.Background(), kafka.Message{Value: []byte("not json")}); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestHandlePropagatesServiceError(t *testing.T) {
	svc := &stubService{err: errors.New("store unavailable")}
	h := NewCreatedHandler(svc)

	value, _ := json.Marshal(model.Task{Filename: "abc.jpg"})
	if err := h.Handle(context.Background(), kafka.Message{Value: value}); err == nil {
		t.Fatal("expected service error to propagate for redelivery")
	}
}
