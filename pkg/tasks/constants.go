package tasks

const (
	// DatabaseURLKey is the environment variable which must hold the database
	// URL to which we want to connect.
	DatabaseURLKey = "IOTDASHBOARD_DATABASE_URL"
)
