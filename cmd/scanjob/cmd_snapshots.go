package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/d2verb/scanjob/internal/client"
	"github.com/d2verb/scanjob/internal/pathutil"
	"github.com/d2verb/scanjob/internal/protocol"
	"github.com/d2verb/scanjob/internal/ui"
)

type SnapshotsCmd struct {
	List SnapshotsListCmd `cmd:"" default:"1" help:"List saved snapshots, newest first"`
	Rm   SnapshotsRmCmd   `cmd:"" help:"Delete a saved snapshot"`
}

type SnapshotsListCmd struct{}

func (c *SnapshotsListCmd) Run() error {
	resp, err := call((*client.Client).ListSnapshots)
	if err != nil {
		return err
	}

	var list []ui.SnapshotInfo
	if raw, ok := resp.Data["snapshots"].([]any); ok {
		for _, r := range raw {
			if m, ok := r.(map[string]any); ok {
				list = append(list, ui.SnapshotInfo{
					Path:         stringVal(m, "file_path"),
					Timestamp:    stringVal(m, "timestamp"),
					CurrentLayer: intVal(m, "current_layer"),
					TotalLayers:  intVal(m, "total_layers"),
				})
			}
		}
	}
	ui.PrintSnapshotList(list)
	return nil
}

type SnapshotsRmCmd struct {
	Snapshot string `arg:"" help:"Snapshot file name or path" predictor:"snapshot"`
	Yes      bool   `short:"y" help:"Do not ask for confirmation"`
}

func (c *SnapshotsRmCmd) Run() error {
	path, err := resolveSnapshot(c.Snapshot)
	if err != nil {
		return err
	}

	if !c.Yes && !promptConfirm(fmt.Sprintf("Delete snapshot %s?", filepath.Base(path))) {
		ui.PrintInfo("Cancelled")
		return nil
	}

	if _, err := call(func(cl *client.Client) (*protocol.Response, error) {
		return cl.DeleteSnapshot(path)
	}); err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Deleted %s", filepath.Base(path)))
	return nil
}

// resolveSnapshot accepts a bare snapshot file name from the states
// directory or a path, and returns an absolute path.
func resolveSnapshot(name string) (string, error) {
	if filepath.Base(name) == name {
		paths, err := getPaths()
		if err != nil {
			return "", err
		}
		candidate := filepath.Join(paths.States, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return pathutil.Abs(name)
}
