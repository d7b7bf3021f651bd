package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/thumbnailer/internal/domain"
)

const TypeRenderThumbnail = "thumbnail:render"

type RenderPayload struct {
	Job         domain.Job `json:"job"`
	RequestedAt time.Time  `json:"requested_at"`
}

func NewRenderTask(payload RenderPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}
	return asynq.NewTask(TypeRenderThumbnail, body), nil
}

func ParseRenderPayload(task *asynq.Task) (RenderPayload, error) {
	var payload RenderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RenderPayload{}, fmt.Errorf("unmarshal render payload: %w", err)
	}
	return payload, nil
}
