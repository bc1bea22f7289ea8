package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Telemetry is a mock implementation of telemetry.Client.
type Telemetry struct {
	mock.Mock
}

func (t *Telemetry) Receive(ctx context.Context, feed string) (string, error) {
	args := t.Called(ctx, feed)
	return args.String(0), args.Error(1)
}

func (t *Telemetry) Send(ctx context.Context, feed, value string) error {
	args := t.Called(ctx, feed, value)
	return args.Error(0)
}
