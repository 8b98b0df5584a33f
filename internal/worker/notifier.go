package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jack-wz/utest/internal/config"
	"github.com/jack-wz/utest/internal/engine"
	"github.com/jack-wz/utest/internal/middleware"
)

type Publisher interface {
	Publish(topic string, body []byte) error
}

// Notifier publishes execution lifecycle events to NSQ.
type Notifier struct {
	pub   Publisher
	topic string
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub, topic: config.TopicExecutionEvents}
}

func (n *Notifier) Notify(ctx context.Context, e engine.Event) error {
	event := ExecutionEvent{
		ExecutionID:  e.ExecutionID,
		WorkflowID:   e.WorkflowID,
		Status:       e.Status,
		Progress:     e.Progress,
		ErrorMessage: e.ErrorMessage,
		Timestamp:    e.Timestamp,
	}
	if id := middleware.GetCorrelationID(ctx); id != "unknown" {
		event.CorrelationID = id
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode execution event: %w", err)
	}
	if err := n.pub.Publish(n.topic, body); err != nil {
		return fmt.Errorf("publish %s: %w", n.topic, err)
	}
	return nil
}
