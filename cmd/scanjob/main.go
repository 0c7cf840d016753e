package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/posener/complete"
	"github.com/willabides/kongplete"
)

var (
	version = "dev"
	commit  = "none"
)

type CLI struct {
	Start    StartCmd    `cmd:"" help:"Start the daemon"`
	Stop     StopCmd     `cmd:"" help:"Stop the daemon"`
	Status   StatusCmd   `cmd:"" help:"Show print job status"`
	Load     LoadCmd     `cmd:"" help:"Queue the layer files of a folder without printing"`
	Run      RunCmd      `cmd:"" help:"Start printing the layers of a folder"`
	Resume   ResumeCmd   `cmd:"" help:"Resume printing from a saved snapshot"`
	Pause    PauseCmd    `cmd:"" help:"Pause before the next layer"`
	Continue ContinueCmd `cmd:"" help:"Continue a paused job"`
	Abort    AbortCmd    `cmd:"" help:"Abort the current job"`

	Snapshots SnapshotsCmd `cmd:"" help:"Manage saved job snapshots"`
	Device    DeviceCmd    `cmd:"" help:"Control the scancard directly"`
	Params    ParamsCmd    `cmd:"" help:"Manage laser parameters"`
	Config    ConfigCmd    `cmd:"" help:"Manage the daemon configuration"`
	Logs      LogsCmd      `cmd:"" help:"Show daemon or laser logs"`

	Version            VersionCmd                    `cmd:"" help:"Show version"`
	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions"`
}

func main() {
	cli := CLI{}
	parser := kong.Must(&cli,
		kong.Name("scanjob"),
		kong.Description("Multi-layer print job controller for laser scancards"),
		kong.UsageOnError(),
	)

	kongplete.Complete(parser,
		kongplete.WithPredictor("snapshot", newSnapshotPredictor()),
		kongplete.WithPredictor("folder", complete.PredictDirs("*")),
		kongplete.WithPredictor("yaml", complete.PredictFiles("*.yaml")),
	)

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	if err := ctx.Run(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode prints err and returns the process exit code for it.
func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Message != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", exitErr.Message)
		}
		return exitErr.Code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitError
}
