package server_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"gopkg.in/guregu/null.v3"

	"github.com/DECODEproject/iotdashboard/pkg/clock"
	"github.com/DECODEproject/iotdashboard/pkg/dashboard"
	"github.com/DECODEproject/iotdashboard/pkg/middleware"
	"github.com/DECODEproject/iotdashboard/pkg/mocks"
	"github.com/DECODEproject/iotdashboard/pkg/postgres"
	"github.com/DECODEproject/iotdashboard/pkg/server"
)

type HandlersSuite struct {
	suite.Suite

	store     *mocks.Store
	telemetry *mocks.Telemetry
	handler   http.Handler
	now       time.Time
}

func (s *HandlersSuite) SetupTest() {
	s.store = &mocks.Store{}
	s.telemetry = &mocks.Telemetry{}
	s.now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	dash := dashboard.NewDashboard(&dashboard.Config{
		Store:           s.store,
		Telemetry:       s.telemetry,
		Clock:           clock.NewMock(s.now),
		PublicDriveLink: "https://drive.example.com/folder",
	}, kitlog.NewNopLogger())

	s.handler = server.NewMux(dash, &pinger{}, kitlog.NewNopLogger())
}

func (s *HandlersSuite) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)

	return rr
}

func (s *HandlersSuite) TestLiveSensors() {
	s.telemetry.On("Receive", mock.Anything, "temperature").Return("21.5", nil)
	s.telemetry.On("Receive", mock.Anything, "Humidity").Return("", errors.New("timeout"))
	s.telemetry.On("Receive", mock.Anything, "Pressure").Return("1013", nil)
	s.telemetry.On("Receive", mock.Anything, "motion_feed").Return("1", nil)

	s.store.On("RecentReadings", mock.Anything, mock.Anything, mock.Anything, 20).Return(
		[]*postgres.Reading{
			{ID: 1, Timestamp: s.now.Add(-time.Minute), SensorType: "humidity", Value: 44},
		}, nil,
	)

	rr := s.do(http.MethodGet, "/api/live-sensors", "")

	s.Equal(http.StatusOK, rr.Code)
	s.Equal("application/json", rr.Header().Get("Content-Type"))
	s.NotEmpty(rr.Header().Get(middleware.RequestIDHeader))
	s.JSONEq(`{"temperature": 21.5, "humidity": 44, "pressure": 1013, "motion": 1}`, rr.Body.String())
}

func (s *HandlersSuite) TestHistory() {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	s.store.On("ReadingsBetween", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(
		[]*postgres.Reading{
			{ID: 1, Timestamp: base, SensorType: "temperature", Value: 21.5},
			{ID: 2, Timestamp: base, SensorType: "humidity", Value: 55},
			{ID: 3, Timestamp: base.Add(5 * time.Minute), SensorType: "temperature", Value: 22},
		}, nil,
	)

	rr := s.do(http.MethodGet, "/api/temperature-history?start=2024-03-01&end=2024-03-01", "")

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{
		"labels": ["2024-03-01 10:00:00", "2024-03-01 10:05:00"],
		"temperature": [21.5, 22],
		"humidity": [55, null],
		"pressure": [null, null]
	}`, rr.Body.String())
}

func (s *HandlersSuite) TestHistoryInvalidRange() {
	rr := s.do(http.MethodGet, "/api/temperature-history?start=2024-03-01&end=later", "")

	s.Equal(http.StatusBadRequest, rr.Code)
	s.JSONEq(`{"error": "end must be a date (YYYY-MM-DD) or timestamp"}`, rr.Body.String())
}

func (s *HandlersSuite) TestIngest() {
	s.store.On("InsertReading", mock.Anything, &postgres.Reading{
		Timestamp:  s.now,
		SensorType: "humidity",
		Value:      48.5,
		Source:     null.StringFrom("pi"),
	}).Return(&postgres.Reading{
		ID:         7,
		Timestamp:  s.now,
		SensorType: "humidity",
		Value:      48.5,
		Source:     null.StringFrom("pi"),
	}, nil)

	rr := s.do(http.MethodPost, "/api/readings", `{"sensor_kind": "Humidity", "value": 48.5, "source": "pi"}`)

	s.Equal(http.StatusCreated, rr.Code)
	s.JSONEq(`{"id": 7, "timestamp": "2024-03-01T12:00:00Z", "sensor_kind": "humidity", "value": 48.5, "source": "pi"}`, rr.Body.String())
	s.store.AssertExpectations(s.T())
}

func (s *HandlersSuite) TestIngestValidation() {
	testcases := []struct {
		body    string
		message string
	}{
		{`{"value": 1}`, "sensor_kind is required"},
		{`{"sensor_kind": "temperature"}`, "value is required"},
		{`{"sensor_kind": "temperature", "value": null}`, "value is required"},
		{``, "sensor_kind is required"},
		{`{"sensor_kind":`, "body must be a valid JSON object"},
	}

	for _, tc := range testcases {
		rr := s.do(http.MethodPost, "/api/readings", tc.body)

		s.Equal(http.StatusBadRequest, rr.Code)
		s.JSONEq(`{"error": "`+tc.message+`"}`, rr.Body.String())
	}

	s.store.AssertNotCalled(s.T(), "InsertReading", mock.Anything, mock.Anything)
}

func (s *HandlersSuite) TestIngestStoreFailure() {
	s.store.On("InsertReading", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	rr := s.do(http.MethodPost, "/api/readings", `{"sensor_kind": "temperature", "value": 20}`)

	s.Equal(http.StatusInternalServerError, rr.Code)
	s.JSONEq(`{"error": "internal server error"}`, rr.Body.String())
}

func (s *HandlersSuite) TestSetDevice() {
	s.telemetry.On("Send", mock.Anything, "leds_control", "1").Return(nil)

	rr := s.do(http.MethodPost, "/api/device/LEDs/set", `{"state": "on"}`)

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"device": "LEDs", "state": 1, "sent_to_aio": true}`, rr.Body.String())
}

func (s *HandlersSuite) TestSetDeviceNoBody() {
	s.telemetry.On("Send", mock.Anything, "buzzer_control", "0").Return(errors.New("throttled"))

	rr := s.do(http.MethodPost, "/api/device/Buzzer/set", "")

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"device": "Buzzer", "state": 0, "sent_to_aio": false}`, rr.Body.String())
}

func (s *HandlersSuite) TestSecurityList() {
	s.store.On("IntrusionEvents", mock.Anything, mock.Anything, mock.Anything).Return(
		[]*postgres.IntrusionEvent{
			{ID: 3, Timestamp: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), EventType: "motion", Processed: true},
		}, nil,
	)

	rr := s.do(http.MethodGet, "/api/security/list?date=2024-03-01", "")

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`[{"id": 3, "timestamp": "2024-03-01 09:30:00", "event_type": "motion", "image_url": null, "processed": true}]`, rr.Body.String())
}

func (s *HandlersSuite) TestSecurityListMissingDate() {
	rr := s.do(http.MethodGet, "/api/security/list", "")

	s.Equal(http.StatusBadRequest, rr.Code)
	s.JSONEq(`{"error": "date required (YYYY-MM-DD)"}`, rr.Body.String())
}

func (s *HandlersSuite) TestSecurityListStoreFailure() {
	s.store.On("IntrusionEvents", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	rr := s.do(http.MethodGet, "/api/security/list?date=2024-03-01", "")

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`[]`, rr.Body.String())
}

func (s *HandlersSuite) TestDevices() {
	rr := s.do(http.MethodGet, "/api/devices", "")

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"LEDs": 0, "Buzzer": 0, "Servo": 0, "Camera": 0}`, rr.Body.String())
}

func (s *HandlersSuite) TestSummary() {
	s.telemetry.On("Receive", mock.Anything, mock.Anything).Return("", errors.New("offline"))
	s.store.On("RecentReadings", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]*postgres.Reading{}, nil)

	rr := s.do(http.MethodGet, "/api/dashboard", "")

	s.Equal(http.StatusOK, rr.Code)
	s.JSONEq(`{"live": {}, "public_drive": "https://drive.example.com/folder"}`, rr.Body.String())
}

func (s *HandlersSuite) TestPulse() {
	rr := s.do(http.MethodGet, "/pulse", "")

	s.Equal(http.StatusOK, rr.Code)
}

func (s *HandlersSuite) TestUnknownRoute() {
	rr := s.do(http.MethodGet, "/api/unknown", "")

	s.Equal(http.StatusNotFound, rr.Code)
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func TestNewMuxWithoutTelemetry(t *testing.T) {
	store := &mocks.Store{}
	store.On("RecentReadings", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]*postgres.Reading{}, nil)

	dash := dashboard.NewDashboard(&dashboard.Config{Store: store}, kitlog.NewNopLogger())

	rr := httptest.NewRecorder()
	server.NewMux(dash, &pinger{}, kitlog.NewNopLogger()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/live-sensors", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{}`, rr.Body.String())
}
