package dashboard

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/guregu/null.v3"

	"github.com/DECODEproject/iotdashboard/pkg/postgres"
	"github.com/DECODEproject/iotdashboard/pkg/sensors"
)

// IngestRequest is a single reading submitted by a sensor or gateway.
type IngestRequest struct {
	SensorKind string      `json:"sensor_kind"`
	Value      null.Float  `json:"value"`
	Source     null.String `json:"source"`
}

// Ingest validates and durably stores a single reading, stamped with the
// current time. The label is stored normalized but is not checked against the
// known kinds, so new sensors can be recorded before the dashboard charts
// them. Validation failures are returned as an ArgumentError and nothing is
// written.
func (d *Dashboard) Ingest(ctx context.Context, req *IngestRequest) (*postgres.Reading, error) {
	if req == nil {
		return nil, RequiredArgumentError("sensor_kind")
	}

	kind := sensors.Normalize(req.SensorKind)
	if kind == "" {
		return nil, RequiredArgumentError("sensor_kind")
	}

	if !req.Value.Valid {
		return nil, RequiredArgumentError("value")
	}

	reading := &postgres.Reading{
		Timestamp:  d.clock.Now(),
		SensorType: kind,
		Value:      req.Value.Float64,
	}

	if req.Source.Valid && strings.TrimSpace(req.Source.String) != "" {
		reading.Source = null.StringFrom(strings.TrimSpace(req.Source.String))
	}

	stored, err := d.store.InsertReading(ctx, reading)
	if err != nil {
		return nil, errors.Wrap(err, "failed to store reading")
	}

	if d.verbose {
		d.logger.Log("msg", "ingested reading", "sensor_type", stored.SensorType, "id", stored.ID)
	}

	return stored, nil
}
