package telemetry_test

import (
	"testing"

	kitlog "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"

	"github.com/DECODEproject/iotdashboard/pkg/telemetry"
)

func TestNewClientUnconfigured(t *testing.T) {
	logger := kitlog.NewNopLogger()

	testcases := []struct {
		label  string
		config *telemetry.Config
	}{
		{"nil config", nil},
		{"empty config", &telemetry.Config{}},
		{"missing key", &telemetry.Config{Username: "alice"}},
		{"missing username", &telemetry.Config{Key: "secret"}},
	}

	for _, tc := range testcases {
		t.Run(tc.label, func(t *testing.T) {
			client, err := telemetry.NewClient(tc.config, logger)
			assert.Nil(t, err)
			assert.Nil(t, client)
		})
	}
}

func TestNewClientTransports(t *testing.T) {
	logger := kitlog.NewNopLogger()

	client, err := telemetry.NewClient(&telemetry.Config{Username: "alice", Key: "secret"}, logger)
	assert.Nil(t, err)
	assert.IsType(t, &telemetry.RESTClient{}, client)

	client, err = telemetry.NewClient(&telemetry.Config{Transport: "mqtt", Username: "alice", Key: "secret"}, logger)
	assert.Nil(t, err)
	assert.IsType(t, &telemetry.MQTTClient{}, client)

	_, err = telemetry.NewClient(&telemetry.Config{Transport: "carrier-pigeon", Username: "alice", Key: "secret"}, logger)
	assert.EqualError(t, err, "unknown telemetry transport: carrier-pigeon")
}
