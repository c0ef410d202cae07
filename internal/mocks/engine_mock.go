package mocks

import (
	"context"

	"github.com/joeflack4/genonaut/internal/engine"
	"github.com/stretchr/testify/mock"
)

type EngineMock struct {
	mock.Mock
}

func (m *EngineMock) Submit(ctx context.Context, wf engine.WorkflowDefinition) (string, error) {
	args := m.Called(ctx, wf)
	return args.String(0), args.Error(1)
}

func (m *EngineMock) Poll(ctx context.Context, ref string) (*engine.PollResult, error) {
	args := m.Called(ctx, ref)

	res, _ := args.Get(0).(*engine.PollResult)
	return res, args.Error(1)
}

func (m *EngineMock) Cancel(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}

func (m *EngineMock) QueueInfo(ctx context.Context) (*engine.QueueInfo, error) {
	args := m.Called(ctx)

	info, _ := args.Get(0).(*engine.QueueInfo)
	return info, args.Error(1)
}
