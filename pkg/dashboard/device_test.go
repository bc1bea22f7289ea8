package dashboard_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/DECODEproject/iotdashboard/pkg/dashboard"
	"github.com/DECODEproject/iotdashboard/pkg/mocks"
)

func TestFeedName(t *testing.T) {
	testcases := []struct {
		device   string
		expected string
	}{
		{"LEDs", "leds_control"},
		{"Living Room Light", "living_room_light_control"},
		{"buzzer", "buzzer_control"},
	}

	for _, tc := range testcases {
		t.Run(tc.device, func(t *testing.T) {
			assert.Equal(t, tc.expected, dashboard.FeedName(tc.device))
		})
	}
}

func TestStateValue(t *testing.T) {
	testcases := []struct {
		label    string
		input    interface{}
		expected int
	}{
		{"nil", nil, 0},
		{"false", false, 0},
		{"true", true, 1},
		{"zero", float64(0), 0},
		{"one", float64(1), 1},
		{"negative", -2, 1},
		{"empty string", "", 0},
		{"string zero", "0", 1},
		{"string off", "off", 1},
		{"empty list", []interface{}{}, 0},
		{"list", []interface{}{0}, 1},
		{"empty object", map[string]interface{}{}, 0},
		{"object", map[string]interface{}{"a": 1}, 1},
	}

	for _, tc := range testcases {
		t.Run(tc.label, func(t *testing.T) {
			assert.Equal(t, tc.expected, dashboard.StateValue(tc.input))
		})
	}
}

func TestSetDevice(t *testing.T) {
	tel := &mocks.Telemetry{}

	tel.On("Send", mock.Anything, "leds_control", "1").Return(nil)

	d := newDashboard(&mocks.Store{}, tel)

	cmd := d.SetDevice(context.Background(), "LEDs", true)

	assert.Equal(t, &dashboard.DeviceCommand{Device: "LEDs", State: 1, Forwarded: true}, cmd)
	tel.AssertExpectations(t)
}

func TestSetDeviceTelemetryFailure(t *testing.T) {
	tel := &mocks.Telemetry{}

	tel.On("Send", mock.Anything, "front_door_control", "0").Return(errors.New("unauthorized"))

	d := newDashboard(&mocks.Store{}, tel)

	cmd := d.SetDevice(context.Background(), "Front Door", nil)

	assert.Equal(t, &dashboard.DeviceCommand{Device: "Front Door", State: 0, Forwarded: false}, cmd)
	tel.AssertExpectations(t)
}

func TestSetDeviceNoTelemetry(t *testing.T) {
	d := newDashboard(&mocks.Store{}, nil)

	cmd := d.SetDevice(context.Background(), "Servo", float64(1))

	assert.Equal(t, &dashboard.DeviceCommand{Device: "Servo", State: 1, Forwarded: false}, cmd)
}

func TestActuatorsReturnsCopy(t *testing.T) {
	d := newDashboard(&mocks.Store{}, nil)

	actuators := d.Actuators()
	actuators["LEDs"] = 1

	assert.Equal(t, 0, d.Actuators()["LEDs"])
	assert.Len(t, d.Actuators(), 4)
}
