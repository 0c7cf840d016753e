package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/posener/complete"

	"github.com/d2verb/scanjob/internal/jobstate"
)

// snapshotPredictor completes snapshot file names from the states directory.
type snapshotPredictor struct{}

func newSnapshotPredictor() complete.Predictor {
	return snapshotPredictor{}
}

// Predict implements complete.Predictor.
func (snapshotPredictor) Predict(args complete.Args) []string {
	paths, err := getPaths()
	if err != nil {
		return nil
	}
	return completeSnapshots(paths.States, args.Last)
}

// completeSnapshots returns snapshot file names in dir starting with partial.
func completeSnapshots(dir, partial string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var results []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != jobstate.Extension {
			continue
		}
		if strings.HasPrefix(name, partial) {
			results = append(results, name)
		}
	}
	sort.Strings(results)
	return results
}
