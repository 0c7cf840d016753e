package main

import (
	"fmt"
	"os"

	"github.com/d2verb/scanjob/internal/config"
	"github.com/d2verb/scanjob/internal/editor"
	"github.com/d2verb/scanjob/internal/ui"
)

type ConfigCmd struct {
	Edit ConfigEditCmd `cmd:"" help:"Open the config file in your editor"`
	Show ConfigShowCmd `cmd:"" default:"1" help:"Print the config file path and contents"`
}

type ConfigEditCmd struct{}

func (c *ConfigEditCmd) Run() error {
	paths, err := getPaths()
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	if err := config.WriteDefault(paths.Config); err != nil {
		return err
	}
	if err := editor.Edit(paths.Config); err != nil {
		return err
	}

	if _, err := config.Load(paths.Config); err != nil {
		ui.PrintWarning(fmt.Sprintf("Config has errors: %v", err))
		return nil
	}
	ui.PrintSuccess("Config saved. Restart the daemon to apply: scanjob stop && scanjob start")
	return nil
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run() error {
	paths, err := getPaths()
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Output, "%s\n\n", ui.Bold(paths.Config))
	data, err := os.ReadFile(paths.Config)
	if os.IsNotExist(err) {
		ui.PrintInfo("No config file, defaults are in use. Create one with: scanjob config edit")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	fmt.Fprint(ui.Output, string(data))
	return nil
}
