// Package client provides a client for communicating with the scanjob daemon.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"github.com/d2verb/scanjob/internal/protocol"
)

// Client communicates with the daemon via Unix socket.
type Client struct {
	socketPath string
}

// New creates a new daemon client.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Send sends a request to the daemon and returns the response.
func (c *Client) Send(req *protocol.Request) (*protocol.Response, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}

// Status asks for the job state.
func (c *Client) Status() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdStatus, nil))
}

// Load scans folder for layer files without starting a job.
func (c *Client) Load(folder string) (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdLoad, map[string]any{
		"folder": folder,
	}))
}

// Start starts a job over folder. An empty folder runs the loaded queue.
func (c *Client) Start(folder string) (*protocol.Response, error) {
	var args map[string]any
	if folder != "" {
		args = map[string]any{"folder": folder}
	}
	return c.Send(protocol.NewRequest(protocol.CmdStart, args))
}

// Resume resumes from snapshot, or from the daemon's choice when empty.
func (c *Client) Resume(snapshot string) (*protocol.Response, error) {
	var args map[string]any
	if snapshot != "" {
		args = map[string]any{"snapshot": snapshot}
	}
	return c.Send(protocol.NewRequest(protocol.CmdResume, args))
}

func (c *Client) Pause() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdPause, nil))
}

func (c *Client) Continue() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdContinue, nil))
}

func (c *Client) Abort() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdAbort, nil))
}

// ListSnapshots lists saved snapshots, newest first.
func (c *Client) ListSnapshots() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdListSnapshots, nil))
}

// DeleteSnapshot removes a saved snapshot.
func (c *Client) DeleteSnapshot(path string) (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdDeleteSnapshot, map[string]any{
		"path": path,
	}))
}

// DeviceStatus queries the scancard working status.
func (c *Client) DeviceStatus() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdDeviceStatus, nil))
}

func (c *Client) DeviceStopMark() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdDeviceStopMark, nil))
}

func (c *Client) DeviceLastError() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdDeviceLastError, nil))
}

func (c *Client) DeviceClearError() (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdDeviceClearError, nil))
}

// ApplyParams writes mark and fill parameters to layers.
func (c *Client) ApplyParams(layers []int, mark, fill map[string]any) (*protocol.Response, error) {
	return c.Send(protocol.NewRequest(protocol.CmdApplyParams, map[string]any{
		"layers": layers,
		"mark":   mark,
		"fill":   fill,
	}))
}
