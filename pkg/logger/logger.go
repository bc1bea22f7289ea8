package logger

import (
	"os"

	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/DECODEproject/iotdashboard/pkg/version"
)

// NewLogger returns a JSON kitlog.Logger writing to stdout. Debug level
// messages are only emitted when verbose is true.
func NewLogger(verbose bool) kitlog.Logger {
	logger := kitlog.NewJSONLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger,
		"service", version.BinaryName,
		"ts", kitlog.DefaultTimestampUTC,
		"version", version.Version,
	)

	if verbose {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	logger.Log("module", "logger", "msg", "creating logger instance", "verbose", verbose)

	return logger
}
