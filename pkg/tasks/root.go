package tasks

import (
	"log"
	"strings"

	raven "github.com/getsentry/raven-go"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DECODEproject/iotdashboard/pkg/version"
)

var configFile string

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file (JSON, YAML or TOML)")

	viper.SetEnvPrefix("iotdashboard")
	viper.AutomaticEnv()
	replacer := strings.NewReplacer("-", "_")
	viper.SetEnvKeyReplacer(replacer)
}

// initConfig loads any .env file into the environment and reads the config
// file if one was given. Values from the environment take precedence over the
// config file.
func initConfig() {
	// a missing .env file is normal outside development
	_ = godotenv.Load()

	if configFile == "" {
		return
	}

	viper.SetConfigFile(configFile)

	err := viper.ReadInConfig()
	if err != nil {
		log.Fatalf("failed to read config file %s: %v", configFile, err)
	}
}

var rootCmd = &cobra.Command{
	Use:   version.BinaryName,
	Short: "JSON API for a home IoT sensor dashboard",
	Long: `This tool serves the JSON API behind a small IoT dashboard displaying
live and historical environmental readings (temperature, humidity, pressure
and motion), relaying on/off commands to actuators, and listing recorded
intrusion events.

Live values are read from the Adafruit IO telemetry API when credentials are
configured, falling back to the most recent readings held in PostgreSQL.
Readings are ingested over HTTP and persisted to PostgreSQL.
`,
	Version: version.VersionString(),
}

// Execute is our main entrypoint to the application
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		raven.CaptureErrorAndWait(err, nil)
		log.Fatal(err)
	}
}
