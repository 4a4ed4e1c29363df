// Package main is the entry point for the data integration platform server.
package main

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/smill0791/data-integration-platform/cmd/data-platform/app"
	"github.com/smill0791/data-integration-platform/internal/logger"
)

// envPrefix is the prefix for environment variable configuration
// (e.g. DIP_LOG_LEVEL).
const envPrefix = "DIP"

func getLogLevel() string {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	level := v.GetString("LOG_LEVEL")
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	return level
}

func main() {
	logger.Initialize(getLogLevel(), os.Getenv("DIP_UNSTRUCTURED_LOGS") == "true")

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
