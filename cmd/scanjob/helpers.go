package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/d2verb/scanjob/internal/client"
	"github.com/d2verb/scanjob/internal/config"
	"github.com/d2verb/scanjob/internal/protocol"
)

func getPaths() (*config.Paths, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("get paths: %w", err)
	}
	return paths, nil
}

func newClient() (*client.Client, error) {
	paths, err := getPaths()
	if err != nil {
		return nil, err
	}
	return client.New(paths.Socket), nil
}

// call runs one daemon request. A failed connection means the daemon is not
// running; an error response is converted with responseError.
func call(fn func(cl *client.Client) (*protocol.Response, error)) (*protocol.Response, error) {
	cl, err := newClient()
	if err != nil {
		return nil, err
	}
	resp, err := fn(cl)
	if err != nil {
		return nil, errDaemonNotRunning()
	}
	if resp.Status == protocol.StatusError {
		return nil, responseError(resp)
	}
	return resp, nil
}

// stringVal extracts a string value from a map, returning empty string if not found.
func stringVal(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// intVal extracts a JSON number from a map as an int.
func intVal(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// parseLayers parses a layer selection such as "1-20,25,30-32" into sorted,
// de-duplicated layer numbers. Layers are numbered from 1.
func parseLayers(s string) ([]int, error) {
	seen := map[int]bool{}
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid layer %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid layer range %q", part)
			}
		}
		if first < 1 || last < first {
			return nil, fmt.Errorf("invalid layer range %q", part)
		}
		for n := first; n <= last; n++ {
			seen[n] = true
		}
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("no layers selected")
	}

	layers := make([]int, 0, len(seen))
	for n := range seen {
		layers = append(layers, n)
	}
	sort.Ints(layers)
	return layers, nil
}
