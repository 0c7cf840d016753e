package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/d2verb/scanjob/internal/client"
	"github.com/d2verb/scanjob/internal/protocol"
	"github.com/d2verb/scanjob/internal/ui"
)

type ParamsCmd struct {
	Apply ParamsApplyCmd `cmd:"" help:"Write mark and fill parameters to layers, then download them to the card"`
}

type ParamsApplyCmd struct {
	File   string `short:"f" required:"" help:"YAML file with mark and fill sections" predictor:"yaml" type:"existingfile"`
	Layers string `short:"l" required:"" help:"Layers to update, e.g. 1-20,25"`
}

// paramsFile is the layout of a parameter file:
//
//	mark:
//	  markSpeed: 1000
//	  power: 80
//	fill:
//	  fillSpace: 0.05
type paramsFile struct {
	Mark map[string]any `yaml:"mark"`
	Fill map[string]any `yaml:"fill"`
}

func loadParamsFile(path string) (*paramsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}
	var pf paramsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse params file %s: %w", path, err)
	}
	if len(pf.Mark) == 0 && len(pf.Fill) == 0 {
		return nil, fmt.Errorf("params file %s has no mark or fill parameters", path)
	}
	return &pf, nil
}

func (c *ParamsApplyCmd) Run() error {
	layers, err := parseLayers(c.Layers)
	if err != nil {
		return err
	}
	pf, err := loadParamsFile(c.File)
	if err != nil {
		return err
	}

	resp, err := call(func(cl *client.Client) (*protocol.Response, error) {
		return cl.ApplyParams(layers, pf.Mark, pf.Fill)
	})
	if err != nil {
		return err
	}

	ui.PrintParamReport(paramReportFromResponse(resp))
	return nil
}

func paramReportFromResponse(resp *protocol.Response) ui.ParamReport {
	report := ui.ParamReport{
		Failures:   stringSlice(resp.Data["failures"]),
		Downloaded: resp.Data["downloaded"] == true,
	}
	if raw, ok := resp.Data["applied"].([]any); ok {
		for _, r := range raw {
			if n, ok := r.(float64); ok {
				report.Applied = append(report.Applied, int(n))
			}
		}
	}
	if raw, ok := resp.Data["invalid"].([]any); ok {
		for _, r := range raw {
			if m, ok := r.(map[string]any); ok {
				report.Invalid = append(report.Invalid,
					fmt.Sprintf("layer %d: %s", intVal(m, "layer"), stringVal(m, "reason")))
			}
		}
	}
	return report
}
