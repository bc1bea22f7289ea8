package postgres

import (
	"context"
	"database/sql"
	"time"

	kitlog "github.com/go-kit/kit/log"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/acme/autocert"
	"gopkg.in/guregu/null.v3"

	"github.com/DECODEproject/iotdashboard/pkg/metrics"
)

var (
	// ReadingsGauge is a gauge of the number of sensor readings in the database
	ReadingsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "decode",
			Subsystem: "dashboard",
			Name:      "readings_gauge",
			Help:      "Count of sensor readings in database",
		},
	)

	// IntrusionEventsGauge is a gauge of the number of unprocessed intrusion
	// events in the database
	IntrusionEventsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "decode",
			Subsystem: "dashboard",
			Name:      "unprocessed_intrusion_events_gauge",
			Help:      "Count of unprocessed intrusion events in database",
		},
	)
)

func init() {
	metrics.MustRegister(ReadingsGauge, IntrusionEventsGauge)
}

const (
	// metricsInterval is how often we sample row counts for the gauges above.
	metricsInterval = 30 * time.Second

	// pqUndefinedTable is returned by postgres when a statement references a
	// table that does not exist, typically because migrations have not run.
	pqUndefinedTable = "42P01"
)

// Reading is a single immutable sensor observation as stored in the
// sensor_readings table.
type Reading struct {
	ID         int64       `db:"id" json:"id"`
	Timestamp  time.Time   `db:"timestamp" json:"timestamp"`
	SensorType string      `db:"sensor_type" json:"sensor_kind"`
	Value      float64     `db:"value" json:"value"`
	Source     null.String `db:"source" json:"source"`
}

// IntrusionEvent is a security record read from the intrusion_events table.
type IntrusionEvent struct {
	ID        int64       `db:"id"`
	Timestamp time.Time   `db:"timestamp"`
	EventType string      `db:"event_type"`
	ImageURL  null.String `db:"image_url"`
	Processed bool        `db:"processed"`
}

// Open is a helper function that takes as input a connection string for a DB,
// and returns either a sqlx.DB instance or an error. This function is separated
// out to help with CLI tasks for managing migrations.
func Open(connStr string) (*sqlx.DB, error) {
	return sqlx.Open("postgres", connStr)
}

// DB is our type that wraps an sqlx.DB instance and provides an API for the
// data access functions we require.
type DB struct {
	connStr string
	DB      *sqlx.DB
	logger  kitlog.Logger
	stop    chan struct{}
}

// Config is used to carry package local configuration for Postgres DB module.
type Config struct {
	ConnStr string
}

// NewDB creates a new DB instance with the given connection string. We also
// pass in a logger.
func NewDB(config *Config, logger kitlog.Logger) *DB {
	logger = kitlog.With(logger, "module", "postgres")

	return &DB{
		connStr: config.ConnStr,
		logger:  logger,
	}
}

// Start creates our DB connection pool running returning an error if any
// failure occurs.
func (d *DB) Start() error {
	d.logger.Log("msg", "starting postgres")

	db, err := Open(d.connStr)
	if err != nil {
		return errors.Wrap(err, "opening db connection failed")
	}

	d.DB = db
	d.stop = make(chan struct{})

	go d.recordMetrics(d.stop)

	return nil
}

// Stop closes the DB connection pool.
func (d *DB) Stop() error {
	d.logger.Log("msg", "stopping postgres client")

	if d.stop != nil {
		close(d.stop)
		d.stop = nil
	}

	if d.DB == nil {
		return nil
	}

	return d.DB.Close()
}

// InsertReading appends a single reading to the sensor_readings table,
// returning the reading with its assigned id.
func (d *DB) InsertReading(ctx context.Context, reading *Reading) (_ *Reading, err error) {
	sql := `INSERT INTO sensor_readings
		(timestamp, sensor_type, value, source)
	VALUES (:timestamp, :sensor_type, :value, :source)
	RETURNING id`

	mapArgs := map[string]interface{}{
		"timestamp":   reading.Timestamp,
		"sensor_type": reading.SensorType,
		"value":       reading.Value,
		"source":      reading.Source,
	}

	tx, err := BeginTX(ctx, d.DB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start transaction when inserting reading")
	}

	defer func() {
		if cerr := tx.CommitOrRollback(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var id int64

	// we use a Get for the insert so we get back the reading id
	err = tx.Get(&id, sql, mapArgs)
	if err != nil {
		return nil, wrapPQ(err, "failed to insert reading")
	}

	reading.ID = id

	return reading, nil
}

// RecentReadings returns at most limit readings newer than since, newest
// first, whose sensor_type contains (case insensitively) any of the given
// fragments.
func (d *DB) RecentReadings(ctx context.Context, since time.Time, fragments []string, limit int) (_ []*Reading, err error) {
	sql := `SELECT id, timestamp, sensor_type, value, source
		FROM sensor_readings
		WHERE timestamp > :since
		AND sensor_type ILIKE ANY(:patterns)
		ORDER BY timestamp DESC, id DESC
		LIMIT :limit`

	patterns := make([]string, len(fragments))
	for i, f := range fragments {
		patterns[i] = "%" + f + "%"
	}

	mapArgs := map[string]interface{}{
		"since":    since,
		"patterns": pq.Array(patterns),
		"limit":    limit,
	}

	return d.selectReadings(ctx, sql, mapArgs)
}

// ReadingsBetween returns every reading whose sensor_type is one of the given
// labels and whose timestamp lies within [start, end] inclusive, in ascending
// timestamp order. Readings sharing a timestamp are ordered by id so callers
// see them in insertion order.
func (d *DB) ReadingsBetween(ctx context.Context, start, end time.Time, sensorTypes []string) ([]*Reading, error) {
	sql := `SELECT id, timestamp, sensor_type, value, source
		FROM sensor_readings
		WHERE timestamp BETWEEN :start AND :end
		AND sensor_type = ANY(:sensor_types)
		ORDER BY timestamp ASC, id ASC`

	mapArgs := map[string]interface{}{
		"start":        start,
		"end":          end,
		"sensor_types": pq.Array(sensorTypes),
	}

	return d.selectReadings(ctx, sql, mapArgs)
}

// selectReadings runs a reading query within a transaction, mapping each row
// into a Reading.
func (d *DB) selectReadings(ctx context.Context, sql string, mapArgs map[string]interface{}) (_ []*Reading, err error) {
	tx, err := BeginTX(ctx, d.DB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if cerr := tx.CommitOrRollback(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	readings := []*Reading{}

	mapper := func(rows *sqlx.Rows) error {
		for rows.Next() {
			var r Reading

			err := rows.StructScan(&r)
			if err != nil {
				return errors.Wrap(err, "failed to scan row into Reading struct")
			}

			readings = append(readings, &r)
		}

		return nil
	}

	err = tx.Map(sql, mapArgs, mapper)
	if err != nil {
		return nil, wrapPQ(err, "failed to select reading rows from database")
	}

	return readings, nil
}

// IntrusionEvents returns all intrusion events with a timestamp within [start,
// end] inclusive, newest first.
func (d *DB) IntrusionEvents(ctx context.Context, start, end time.Time) (_ []*IntrusionEvent, err error) {
	sql := `SELECT id, timestamp, event_type, image_url, processed
		FROM intrusion_events
		WHERE timestamp BETWEEN :start AND :end
		ORDER BY timestamp DESC, id DESC`

	mapArgs := map[string]interface{}{
		"start": start,
		"end":   end,
	}

	tx, err := BeginTX(ctx, d.DB)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}

	defer func() {
		if cerr := tx.CommitOrRollback(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	events := []*IntrusionEvent{}

	mapper := func(rows *sqlx.Rows) error {
		for rows.Next() {
			var e IntrusionEvent

			err := rows.StructScan(&e)
			if err != nil {
				return errors.Wrap(err, "failed to scan row into IntrusionEvent struct")
			}

			events = append(events, &e)
		}

		return nil
	}

	err = tx.Map(sql, mapArgs, mapper)
	if err != nil {
		return nil, wrapPQ(err, "failed to select intrusion events from database")
	}

	return events, nil
}

// MigrateUp is a convenience function to run all up migrations in the context
// of an instantiated DB instance.
func (d *DB) MigrateUp() error {
	return MigrateUp(d.DB.DB, d.logger)
}

// Ping attempts to verify the database connection is still alive by executing a
// simple select query on the database server. We don't use the built in
// DB.Ping() function here as this may not go to the database if there existing
// connections in the pool.
func (d *DB) Ping() error {
	_, err := d.DB.Exec("SELECT 1")
	if err != nil {
		return err
	}
	return nil
}

// Get is an implementation of the Get method of the autocert.Cache interface.
func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT certificate FROM certificates WHERE key = $1`

	var cert []byte
	err := d.DB.GetContext(ctx, &cert, query, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, autocert.ErrCacheMiss
		}
		return nil, errors.Wrap(err, "failed to read certificate from DB")
	}

	return cert, nil
}

// Put is an implementation of the Put method of the autocert.Cache interface
// for saving certificates
func (d *DB) Put(ctx context.Context, key string, cert []byte) (err error) {
	query := `INSERT INTO certificates (key, certificate)
		VALUES (:key, :certificate)
	ON CONFLICT (key)
	DO UPDATE SET certificate = EXCLUDED.certificate`

	mapArgs := map[string]interface{}{
		"key":         key,
		"certificate": cert,
	}

	tx, err := BeginTX(ctx, d.DB)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction when writing certificate")
	}

	defer func() {
		if cerr := tx.CommitOrRollback(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	err = tx.Exec(query, mapArgs)
	if err != nil {
		return errors.Wrap(err, "failed to insert certificate")
	}

	return nil
}

// Delete is an implementation of the Delete method of the autocert.Cache
// interface method for deleting certificates.
func (d *DB) Delete(ctx context.Context, key string) (err error) {
	query := `DELETE FROM certificates WHERE key = $1`

	tx, err := BeginTX(ctx, d.DB)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction when deleting certificate")
	}

	defer func() {
		if cerr := tx.CommitOrRollback(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	err = tx.Exec(query, []interface{}{key})
	if err != nil {
		return errors.Wrap(err, "failed to delete certificate")
	}

	return nil
}

// ensure we adhere to the interface
var _ autocert.Cache = &DB{}

// recordMetrics starts a ticker to collect some gauge related metrics from the
// DB on a 30 second interval, exiting when the DB is stopped.
func (d *DB) recordMetrics(stop <-chan struct{}) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.sampleGauges()
		}
	}
}

// sampleGauges reads the current row counts used by our gauges.
func (d *DB) sampleGauges() {
	var readingCount float64
	err := d.DB.Get(&readingCount, `SELECT COUNT(*) FROM sensor_readings`)
	if err != nil {
		d.logger.Log("msg", "error counting readings", "err", err)
	} else {
		ReadingsGauge.Set(readingCount)
	}

	var eventCount float64
	err = d.DB.Get(&eventCount, `SELECT COUNT(*) FROM intrusion_events WHERE NOT processed`)
	if err != nil {
		d.logger.Log("msg", "error counting intrusion events", "err", err)
	} else {
		IntrusionEventsGauge.Set(eventCount)
	}
}

// wrapPQ wraps err with msg, calling out a missing table explicitly as this is
// the most likely cause of failure on a fresh database.
func wrapPQ(err error, msg string) error {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		if pqErr.Code == pqUndefinedTable {
			return errors.Wrap(err, msg+": table missing, have migrations been run?")
		}
	}
	return errors.Wrap(err, msg)
}
