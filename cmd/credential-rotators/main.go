package main

import (
	"context"
	"os"

	"github.com/savaki/credential-rotators/cmd/credential-rotators/commands"
	"github.com/savaki/credential-rotators/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "credential-rotators",
		Usage: "npm credential rotation and CI execution role toolkit",
		Description: `Operate the npm credential rotation functions and the common stacks that
provision the CI execution role.

This tool provides commands for:
  - Starting, resuming and cancelling rotations of the npm login secret
  - Listing the rotation history recorded by the rotation function
  - Rendering, deploying and verifying common stacks`,
		Commands: []*cli.Command{
			commands.RotateCommand(),
			commands.StepCommand(),
			commands.CancelRotationCommand(),
			commands.HistoryCommand(),
			commands.StackCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Application error")
		os.Exit(1)
	}
}
