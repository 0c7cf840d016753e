package main

import (
	"fmt"

	"github.com/d2verb/scanjob/internal/client"
	"github.com/d2verb/scanjob/internal/pathutil"
	"github.com/d2verb/scanjob/internal/protocol"
	"github.com/d2verb/scanjob/internal/ui"
)

type LoadCmd struct {
	Folder string `arg:"" help:"Folder containing the layer files" predictor:"folder" type:"existingdir"`
}

func (c *LoadCmd) Run() error {
	folder, err := pathutil.Abs(c.Folder)
	if err != nil {
		return err
	}

	resp, err := call(func(cl *client.Client) (*protocol.Response, error) {
		return cl.Load(folder)
	})
	if err != nil {
		return err
	}

	ui.PrintLayerList(folder, stringSlice(resp.Data["files"]))
	return nil
}

type RunCmd struct {
	Folder string `arg:"" optional:"" help:"Folder containing the layer files (default: the loaded queue)" predictor:"folder"`
}

func (c *RunCmd) Run() error {
	folder := ""
	if c.Folder != "" {
		abs, err := pathutil.Abs(c.Folder)
		if err != nil {
			return err
		}
		folder = abs
	}

	resp, err := call(func(cl *client.Client) (*protocol.Response, error) {
		return cl.Start(folder)
	})
	if err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Print started: %d layers", intVal(resp.Data, "total_layers")))
	ui.PrintInfo("Follow progress with: scanjob status")
	return nil
}

type ResumeCmd struct {
	Snapshot string `arg:"" optional:"" help:"Snapshot file to resume from (default: the most recent)" predictor:"snapshot"`
}

func (c *ResumeCmd) Run() error {
	snapshot := ""
	if c.Snapshot != "" {
		abs, err := resolveSnapshot(c.Snapshot)
		if err != nil {
			return err
		}
		snapshot = abs
	}

	resp, err := call(func(cl *client.Client) (*protocol.Response, error) {
		return cl.Resume(snapshot)
	})
	if err != nil {
		return err
	}

	total := intVal(resp.Data, "total_layers")
	next := intVal(resp.Data, "current_index") + 2
	ui.PrintSuccess(fmt.Sprintf("Print resumed at layer %d/%d (%d%%)", min(next, total), total, intVal(resp.Data, "progress")))
	ui.PrintInfo(fmt.Sprintf("Snapshot: %s", stringVal(resp.Data, "snapshot")))
	return nil
}

type PauseCmd struct{}

func (c *PauseCmd) Run() error {
	if _, err := call((*client.Client).Pause); err != nil {
		return err
	}
	ui.PrintSuccess("Pause requested, the job holds before its next layer")
	return nil
}

type ContinueCmd struct{}

func (c *ContinueCmd) Run() error {
	if _, err := call((*client.Client).Continue); err != nil {
		return err
	}
	ui.PrintSuccess("Print continued")
	return nil
}

type AbortCmd struct{}

func (c *AbortCmd) Run() error {
	if _, err := call((*client.Client).Abort); err != nil {
		return err
	}
	ui.PrintSuccess("Abort requested")
	return nil
}

// stringSlice converts a decoded JSON array of strings.
func stringSlice(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
