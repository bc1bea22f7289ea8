package dashboard_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gopkg.in/guregu/null.v3"

	"github.com/DECODEproject/iotdashboard/pkg/dashboard"
	"github.com/DECODEproject/iotdashboard/pkg/mocks"
	"github.com/DECODEproject/iotdashboard/pkg/postgres"
)

func TestSecurityEvents(t *testing.T) {
	store := &mocks.Store{}

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC)

	store.On("IntrusionEvents", mock.Anything, start, end).Return(
		[]*postgres.IntrusionEvent{
			{
				ID:        2,
				Timestamp: time.Date(2024, 3, 1, 22, 15, 3, 500, time.UTC),
				EventType: "motion",
				ImageURL:  null.StringFrom("https://drive.example.com/2.jpg"),
				Processed: true,
			},
			{
				ID:        1,
				Timestamp: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
				EventType: "door",
			},
		}, nil,
	)

	d := newDashboard(store, nil)

	events, err := d.SecurityEvents(context.Background(), "2024-03-01")
	assert.Nil(t, err)
	assert.Len(t, events, 2)

	b, err := json.Marshal(events)
	assert.Nil(t, err)
	assert.JSONEq(t, `[
		{"id": 2, "timestamp": "2024-03-01 22:15:03", "event_type": "motion", "image_url": "https://drive.example.com/2.jpg", "processed": true},
		{"id": 1, "timestamp": "2024-03-01 08:00:00", "event_type": "door", "image_url": null, "processed": false}
	]`, string(b))

	store.AssertExpectations(t)
}

func TestSecurityEventsValidation(t *testing.T) {
	store := &mocks.Store{}
	d := newDashboard(store, nil)

	_, err := d.SecurityEvents(context.Background(), "")
	assert.True(t, dashboard.IsArgumentError(err))
	assert.Equal(t, "date required (YYYY-MM-DD)", err.Error())

	_, err = d.SecurityEvents(context.Background(), "01/03/2024")
	assert.True(t, dashboard.IsArgumentError(err))

	store.AssertNotCalled(t, "IntrusionEvents", mock.Anything, mock.Anything, mock.Anything)
}

func TestSecurityEventsStoreFailure(t *testing.T) {
	store := &mocks.Store{}

	store.On("IntrusionEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	d := newDashboard(store, nil)

	events, err := d.SecurityEvents(context.Background(), "2024-03-01")
	assert.Nil(t, err)
	assert.NotNil(t, events)
	assert.Len(t, events, 0)
}
