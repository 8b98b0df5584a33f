package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/jack-wz/utest/internal/apperr"
	"github.com/jack-wz/utest/internal/graph"
	"github.com/jack-wz/utest/internal/middleware"
	"github.com/jack-wz/utest/internal/worker"
)

func message(body string) *nsq.Message {
	return nsq.NewMessage(nsq.MessageID{}, []byte(body))
}

func TestRunConsumer_HandleMessage(t *testing.T) {
	wf := &graph.Workflow{ID: "wf-1", Name: "docs"}

	tests := []struct {
		name    string
		body    string
		setup   func(w *MockWorkflows, r *MockRunner)
		wantErr bool
	}{
		{
			name: "Starts Run",
			body: `{"workflow_id":"wf-1","correlation_id":"corr-1"}`,
			setup: func(w *MockWorkflows, r *MockRunner) {
				w.On("Get", mock.Anything, "wf-1").Return(wf, nil)
				r.On("Start", mock.MatchedBy(func(ctx context.Context) bool {
					return middleware.GetCorrelationID(ctx) == "corr-1"
				}), wf).Return("exec-1", nil)
			},
		},
		{
			name:  "Empty Body",
			body:  "",
			setup: func(*MockWorkflows, *MockRunner) {},
		},
		{
			name:  "Invalid JSON",
			body:  "{not json",
			setup: func(*MockWorkflows, *MockRunner) {},
		},
		{
			name:  "Missing Workflow ID",
			body:  `{"correlation_id":"c"}`,
			setup: func(*MockWorkflows, *MockRunner) {},
		},
		{
			name: "Workflow Not Found",
			body: `{"workflow_id":"gone"}`,
			setup: func(w *MockWorkflows, r *MockRunner) {
				w.On("Get", mock.Anything, "gone").Return(nil, apperr.NotFound("workflow", "gone"))
			},
		},
		{
			name: "Lookup Failure Retries",
			body: `{"workflow_id":"wf-1"}`,
			setup: func(w *MockWorkflows, r *MockRunner) {
				w.On("Get", mock.Anything, "wf-1").Return(nil, errors.New("connection refused"))
			},
			wantErr: true,
		},
		{
			name: "Invalid Workflow Dropped",
			body: `{"workflow_id":"wf-1"}`,
			setup: func(w *MockWorkflows, r *MockRunner) {
				w.On("Get", mock.Anything, "wf-1").Return(wf, nil)
				r.On("Start", mock.Anything, wf).Return("", apperr.Validation("workflow has no nodes"))
			},
		},
		{
			name: "Start Failure Retries",
			body: `{"workflow_id":"wf-1"}`,
			setup: func(w *MockWorkflows, r *MockRunner) {
				w.On("Get", mock.Anything, "wf-1").Return(wf, nil)
				r.On("Start", mock.Anything, wf).Return("", &apperr.StorageError{Op: "create", Err: errors.New("disk full")})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflows := new(MockWorkflows)
			runner := new(MockRunner)
			tt.setup(workflows, runner)

			err := worker.NewRunConsumer(workflows, runner).HandleMessage(message(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			workflows.AssertExpectations(t)
			runner.AssertExpectations(t)
		})
	}
}

func TestRunConsumer_GeneratesCorrelationID(t *testing.T) {
	wf := &graph.Workflow{ID: "wf-1"}
	workflows := new(MockWorkflows)
	runner := new(MockRunner)
	workflows.On("Get", mock.Anything, "wf-1").Return(wf, nil)
	runner.On("Start", mock.MatchedBy(func(ctx context.Context) bool {
		id := middleware.GetCorrelationID(ctx)
		return id != "" && id != "unknown"
	}), wf).Return("exec-1", nil)

	err := worker.NewRunConsumer(workflows, runner).HandleMessage(message(`{"workflow_id":"wf-1"}`))
	assert.NoError(t, err)
	runner.AssertExpectations(t)
}
