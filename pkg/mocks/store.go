package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/DECODEproject/iotdashboard/pkg/postgres"
)

// Store is a mock implementation of the dashboard's store.
type Store struct {
	mock.Mock
}

func (s *Store) InsertReading(ctx context.Context, reading *postgres.Reading) (*postgres.Reading, error) {
	args := s.Called(ctx, reading)
	r, _ := args.Get(0).(*postgres.Reading)
	return r, args.Error(1)
}

func (s *Store) RecentReadings(ctx context.Context, since time.Time, fragments []string, limit int) ([]*postgres.Reading, error) {
	args := s.Called(ctx, since, fragments, limit)
	r, _ := args.Get(0).([]*postgres.Reading)
	return r, args.Error(1)
}

func (s *Store) ReadingsBetween(ctx context.Context, start, end time.Time, sensorTypes []string) ([]*postgres.Reading, error) {
	args := s.Called(ctx, start, end, sensorTypes)
	r, _ := args.Get(0).([]*postgres.Reading)
	return r, args.Error(1)
}

func (s *Store) IntrusionEvents(ctx context.Context, start, end time.Time) ([]*postgres.IntrusionEvent, error) {
	args := s.Called(ctx, start, end)
	e, _ := args.Get(0).([]*postgres.IntrusionEvent)
	return e, args.Error(1)
}
