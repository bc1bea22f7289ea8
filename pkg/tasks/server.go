package tasks

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DECODEproject/iotdashboard/pkg/dashboard"
	"github.com/DECODEproject/iotdashboard/pkg/logger"
	"github.com/DECODEproject/iotdashboard/pkg/sensors"
	"github.com/DECODEproject/iotdashboard/pkg/server"
	"github.com/DECODEproject/iotdashboard/pkg/telemetry"
)

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.Flags().StringP("addr", "a", "0.0.0.0:5000", "Address to which the HTTP server binds")
	serverCmd.Flags().Bool("verbose", false, "Enable verbose output")
	serverCmd.Flags().String("aio-transport", telemetry.TransportREST, "Transport used to reach Adafruit IO (rest or mqtt)")
	serverCmd.Flags().String("aio-url", telemetry.DefaultURL, "Base URL of the Adafruit IO REST API")
	serverCmd.Flags().String("aio-broker", telemetry.DefaultBroker, "Address of the Adafruit IO MQTT broker")
	serverCmd.Flags().String("feed-temperature", "", "Adafruit IO feed holding temperature readings")
	serverCmd.Flags().String("feed-humidity", "", "Adafruit IO feed holding humidity readings")
	serverCmd.Flags().String("feed-pressure", "", "Adafruit IO feed holding pressure readings")
	serverCmd.Flags().String("feed-motion", "", "Adafruit IO feed holding motion readings")
	serverCmd.Flags().StringSlice("domains", []string{}, "Domains for which TLS certificates are obtained from Let's Encrypt")
	serverCmd.Flags().String("cert-file", "", "Path to a TLS certificate file")
	serverCmd.Flags().String("key-file", "", "Path to a TLS private key file")
	serverCmd.Flags().String("public-drive-folder-link", "", "Link to the shared folder holding intrusion images")

	viper.BindPFlag("addr", serverCmd.Flags().Lookup("addr"))
	viper.BindPFlag("verbose", serverCmd.Flags().Lookup("verbose"))
	viper.BindPFlag("aio_transport", serverCmd.Flags().Lookup("aio-transport"))
	viper.BindPFlag("aio_url", serverCmd.Flags().Lookup("aio-url"))
	viper.BindPFlag("aio_broker", serverCmd.Flags().Lookup("aio-broker"))
	viper.BindPFlag("feed_temperature", serverCmd.Flags().Lookup("feed-temperature"))
	viper.BindPFlag("feed_humidity", serverCmd.Flags().Lookup("feed-humidity"))
	viper.BindPFlag("feed_pressure", serverCmd.Flags().Lookup("feed-pressure"))
	viper.BindPFlag("feed_motion", serverCmd.Flags().Lookup("feed-motion"))
	viper.BindPFlag("domains", serverCmd.Flags().Lookup("domains"))
	viper.BindPFlag("cert_file", serverCmd.Flags().Lookup("cert-file"))
	viper.BindPFlag("key_file", serverCmd.Flags().Lookup("key-file"))
	viper.BindPFlag("public_drive_folder_link", serverCmd.Flags().Lookup("public-drive-folder-link"))
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the dashboard API listening for requests",
	Long: `
Starts the dashboard JSON API. Readings and intrusion events are stored in
PostgreSQL, whose connection string must be supplied via
$IOTDASHBOARD_DATABASE_URL. Up migrations are run on boot.

If $IOTDASHBOARD_AIO_USERNAME and $IOTDASHBOARD_AIO_KEY are set, live values
are read from (and actuator commands sent to) Adafruit IO, over either the
REST API or the MQTT broker. Without them the dashboard works from stored
readings alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := viper.GetString("addr")
		if addr == "" {
			return errors.New("Must provide a bind address")
		}

		connStr := viper.GetString("database_url")
		if connStr == "" {
			return errors.New("Missing required environment variable: $" + DatabaseURLKey)
		}

		verbose := viper.GetBool("verbose")

		logger := logger.NewLogger(verbose)

		config := &server.Config{
			ListenAddr: addr,
			ConnStr:    connStr,
			Verbose:    verbose,
			CertFile:   viper.GetString("cert_file"),
			KeyFile:    viper.GetString("key_file"),
			Domains:    viper.GetStringSlice("domains"),
			Telemetry: &telemetry.Config{
				Transport: viper.GetString("aio_transport"),
				Username:  viper.GetString("aio_username"),
				Key:       viper.GetString("aio_key"),
				URL:       viper.GetString("aio_url"),
				Broker:    viper.GetString("aio_broker"),
				Verbose:   verbose,
			},
			Feeds: map[sensors.Kind]string{
				sensors.Temperature: viper.GetString("feed_temperature"),
				sensors.Humidity:    viper.GetString("feed_humidity"),
				sensors.Pressure:    viper.GetString("feed_pressure"),
				sensors.Motion:      viper.GetString("feed_motion"),
			},
			Actuators:       actuatorsFromConfig(viper.GetStringMap("actuators")),
			PublicDriveLink: viper.GetString("public_drive_folder_link"),
		}

		s, err := server.NewServer(config, logger)
		if err != nil {
			return err
		}

		return s.Start()
	},
}

// actuatorsFromConfig reduces the configured actuators to their initial on or
// off states. Names read from a config file arrive lowercased by viper.
func actuatorsFromConfig(raw map[string]interface{}) map[string]int {
	if len(raw) == 0 {
		return nil
	}

	actuators := make(map[string]int, len(raw))
	for name, state := range raw {
		actuators[name] = dashboard.StateValue(state)
	}

	return actuators
}
