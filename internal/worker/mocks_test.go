package worker_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/jack-wz/utest/internal/graph"
)

type MockWorkflows struct{ mock.Mock }

func (m *MockWorkflows) Get(ctx context.Context, id string) (*graph.Workflow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*graph.Workflow), args.Error(1)
}

type MockRunner struct{ mock.Mock }

func (m *MockRunner) Start(ctx context.Context, w *graph.Workflow) (string, error) {
	args := m.Called(ctx, w)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mu       sync.Mutex
	topics   []string
	messages [][]byte
	err      error
}

func (m *MockPublisher) Publish(topic string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	m.messages = append(m.messages, body)
	return nil
}
