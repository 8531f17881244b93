package main

import (
	"github.com/couchcryptid/quake-map-etl/internal/domain"
)

// ClassifyCommand classifies a FeatureCollection file offline.
type ClassifyCommand struct {
	Input  string `short:"i" long:"input" description:"GeoJSON FeatureCollection file. Reads from stdin if empty or -"`
	Output string `short:"o" long:"output" description:"Output file path. Writes to stdout if empty"`
	Format string `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
}

func (c *ClassifyCommand) Execute(_ []string) error {
	logger := newLogger()

	data, err := readInput(c.Input)
	if err != nil {
		return err
	}
	features, err := domain.ParseFeatureCollection(data)
	if err != nil {
		return err
	}

	result := domain.Classify(features)
	logger.Info("classified", "features", len(features), "points", len(result.Points), "dropped", result.Dropped)
	if result.Bounds == nil {
		logger.Warn("no valid coordinates, bounds are empty")
	}
	return writeOutput(c.Output, result, c.Format)
}
