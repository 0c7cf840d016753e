package main

import (
	"github.com/d2verb/scanjob/internal/client"
	"github.com/d2verb/scanjob/internal/config"
	"github.com/d2verb/scanjob/internal/ui"
)

type DeviceCmd struct {
	Status DeviceStatusCmd `cmd:"" default:"1" help:"Show the scancard working status"`
	Stop   DeviceStopCmd   `cmd:"" help:"Stop marking immediately"`
	Error  DeviceErrorCmd  `cmd:"" help:"Show the last scancard error"`
	Clear  DeviceClearCmd  `cmd:"" help:"Clear the scancard error state"`
}

type DeviceStatusCmd struct{}

func (c *DeviceStatusCmd) Run() error {
	resp, err := call((*client.Client).DeviceStatus)
	if err != nil {
		return err
	}

	addr := ""
	if paths, err := getPaths(); err == nil {
		if cfg, err := config.Load(paths.Config); err == nil {
			addr = cfg.Device.Address()
		}
	}
	ui.PrintDeviceStatus(addr, stringVal(resp.Data, "status"))
	return nil
}

type DeviceStopCmd struct{}

func (c *DeviceStopCmd) Run() error {
	if _, err := call((*client.Client).DeviceStopMark); err != nil {
		return err
	}
	ui.PrintSuccess("Marking stopped")
	return nil
}

type DeviceErrorCmd struct{}

func (c *DeviceErrorCmd) Run() error {
	resp, err := call((*client.Client).DeviceLastError)
	if err != nil {
		return err
	}
	ui.PrintDeviceError(intVal(resp.Data, "code"), stringVal(resp.Data, "description"))
	return nil
}

type DeviceClearCmd struct{}

func (c *DeviceClearCmd) Run() error {
	if _, err := call((*client.Client).DeviceClearError); err != nil {
		return err
	}
	ui.PrintSuccess("Scancard error cleared")
	return nil
}
