package main

import (
	"time"

	"github.com/d2verb/scanjob/internal/client"
	"github.com/d2verb/scanjob/internal/protocol"
	"github.com/d2verb/scanjob/internal/ui"
)

type StatusCmd struct {
	Events int `short:"n" default:"5" help:"Number of recent events to show"`
}

func (c *StatusCmd) Run() error {
	resp, err := call((*client.Client).Status)
	if err != nil {
		return err
	}

	paths, err := getPaths()
	if err != nil {
		return err
	}

	st := jobStatusFromResponse(resp)
	st.LogPath = paths.DaemonLog
	if len(st.Events) > c.Events {
		st.Events = st.Events[len(st.Events)-c.Events:]
	}
	ui.PrintJobStatus(st)
	return nil
}

// jobStatusFromResponse decodes the status command's data.
func jobStatusFromResponse(resp *protocol.Response) ui.JobStatus {
	d := resp.Data
	st := ui.JobStatus{
		State:        stringVal(d, "state"),
		RunID:        stringVal(d, "run_id"),
		Folder:       stringVal(d, "folder"),
		Reason:       stringVal(d, "reason"),
		CurrentIndex: intVal(d, "current_index"),
		CurrentFile:  stringVal(d, "current_file"),
		TotalLayers:  intVal(d, "total_layers"),
		Progress:     intVal(d, "progress"),
		Snapshot:     stringVal(d, "snapshot"),
		StartedAt:    localTime(stringVal(d, "started_at")),
	}
	if raw, ok := d["events"].([]any); ok {
		for _, r := range raw {
			if ev, ok := r.(map[string]any); ok {
				st.Events = append(st.Events, ui.EventLine{
					Time:    clockTime(stringVal(ev, "time")),
					Type:    stringVal(ev, "type"),
					Message: stringVal(ev, "message"),
				})
			}
		}
	}
	return st
}

// localTime reformats an RFC 3339 timestamp in local time.
func localTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func clockTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("15:04:05")
}
