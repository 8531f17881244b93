// Command quakectl is the operator tool for the earthquake marker pipeline.
// It classifies GeoJSON files offline, queries the INGV feed, and checks
// previously written classification results.
//
// Usage:
//
//	quakectl classify -i data/mock/ingv_events_20240520.geojson -f yaml
//	quakectl fetch --min-mag 2.5 --since 24h --publish
//	quakectl validate -i events.geojson -r result.json
package main

import (
	"log/slog"
	"os"

	"github.com/couchcryptid/quake-map-etl/internal/observability"
	"github.com/jessevdk/go-flags"
)

// Options are the global flags shared by every subcommand.
type Options struct {
	LogLevel string `long:"log-level" env:"LOG_LEVEL" description:"Log level for diagnostics on stderr" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"warn"`

	Classify ClassifyCommand `command:"classify" description:"Classify a GeoJSON FeatureCollection into map markers"`
	Fetch    FetchCommand    `command:"fetch" description:"Query the INGV event service and classify or publish the result"`
	Validate ValidateCommand `command:"validate" description:"Check a classification result against its input"`
}

var opts Options

func main() {
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return observability.NewTextLogger(os.Stderr, opts.LogLevel)
}
