// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package run is the command that derives one shell command per input line and runs
// them all with a bounded number of workers.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/matt-FFFFFF/batchrun/internal/config"
	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
	"github.com/matt-FFFFFF/batchrun/internal/runbatch"
	"github.com/matt-FFFFFF/batchrun/internal/source"
	"github.com/urfave/cli/v3"
)

const (
	workersArg     = "workers"
	fileArg        = "file"
	configFlag     = "config"
	templateFlag   = "template"
	shellFlag      = "shell"
	keepHeaderFlag = "keep-header"
	verboseFlag    = "verbose"
)

// ErrBuildConfig is returned when the settings for the run cannot be assembled.
var ErrBuildConfig = errors.New("failed to build config")

// NewCommand returns the root command. A new value is returned on every call
// because a cli.Command keeps parse state.
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:      "batchrun",
		Usage:     "run one shell command per line of a file, a bounded number at a time",
		UsageText: "batchrun [options] WORKERS FILE",
		Description: `Reads FILE, discards its first line (a header) and turns every other line into a
shell command using the template, "git clone {}" by default. The commands are run
with at most WORKERS of them at once. When all of them have finished, the elapsed
time is printed.

FILE may also be a URL in Hashicorp's go-getter syntax, for example
https://example.com/repos.txt or git::https://example.com/lists.git//repos.txt?ref=main.

A command that fails does not stop the others and does not change the exit status.
Set BATCHRUN_LOG_LEVEL=INFO to see the stderr of each command, or DEBUG for everything.`,
		Copyright: "Copyright (c) matt-FFFFFF 2025. All rights reserved.",
		Authors: []any{
			"Matt White (matt-FFFFFF)",
		},
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:      workersArg,
				UsageText: "WORKERS",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
			&cli.StringArg{
				Name:      fileArg,
				UsageText: " FILE",
				Config: cli.StringConfig{
					TrimSpace: true,
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:      configFlag,
				Aliases:   []string{"c"},
				Usage:     "YAML file with template, shell and keepHeader settings",
				TakesFile: true,
				OnlyOnce:  true,
			},
			&cli.StringFlag{
				Name:     templateFlag,
				Aliases:  []string{"t"},
				Usage:    "command template, {} is replaced by each line",
				Value:    source.DefaultTemplate,
				OnlyOnce: true,
			},
			&cli.StringFlag{
				Name:      shellFlag,
				Usage:     "shell used to run each command (default: $SHELL or /bin/sh)",
				TakesFile: true,
				OnlyOnce:  true,
			},
			&cli.BoolFlag{
				Name:     keepHeaderFlag,
				Usage:    "treat the first line of FILE as an item",
				OnlyOnce: true,
			},
			&cli.BoolFlag{
				Name:     verboseFlag,
				Aliases:  []string{"v"},
				Usage:    "log at debug level",
				OnlyOnce: true,
			},
		},
		Action: actionFunc,
	}
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool(verboseFlag) {
		ctxlog.LevelVar.Set(slog.LevelDebug)
	}

	cfg, err := buildConfig(ctx, cmd)
	if err != nil {
		return errors.Join(ErrBuildConfig, err)
	}

	cmds, err := source.Load(ctx, cfg.InputFile, cfg.SourceOptions())
	if err != nil {
		return errors.Join(config.ErrConfiguration, err)
	}

	pool, err := runbatch.NewPool(cfg.Workers, runbatch.NewShellExecutor(cfg.Shell))
	if err != nil {
		return errors.Join(config.ErrConfiguration, err)
	}

	ctxlog.Info(ctx, "starting batch", "commands", len(cmds), "workers", cfg.Workers)

	report := pool.Run(ctx, cmds)

	_, err = fmt.Fprintf(cmd.Root().Writer, "Finished running %d command(s) in %.3f second(s)\n",
		report.Dispatched, report.Elapsed.Seconds())

	return err //nolint:wrapcheck
}

// buildConfig layers defaults, the config file, flags and positional arguments.
func buildConfig(ctx context.Context, cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()

	if path := cmd.String(configFlag); path != "" {
		var err error

		cfg, err = config.Load(ctx, path, cfg)
		if err != nil {
			return cfg, err //nolint:wrapcheck
		}
	}

	if cmd.IsSet(templateFlag) {
		cfg.Template = cmd.String(templateFlag)
	}

	if cmd.IsSet(shellFlag) {
		cfg.Shell = cmd.String(shellFlag)
	}

	if cmd.IsSet(keepHeaderFlag) {
		cfg.KeepHeader = cmd.Bool(keepHeaderFlag)
	}

	workers := cmd.StringArg(workersArg)
	if workers != "" {
		n, err := strconv.Atoi(workers)
		if err != nil {
			return cfg, errors.Join(config.ErrConfiguration, config.ErrWorkers, err)
		}

		cfg.Workers = n
	}

	cfg.InputFile = cmd.StringArg(fileArg)

	return cfg, cfg.Validate() //nolint:wrapcheck
}
