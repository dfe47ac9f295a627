// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package config holds the settings of a batch run and their validation.
//
// Settings come from, in increasing precedence: Default, an optional YAML file
// (see Load), command line flags and the positional arguments.
//
// Example file:
//
//	template: git clone --depth 1 {}
//	shell: /bin/bash
//	keepHeader: false
package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/batchrun/internal/ctxlog"
	"github.com/matt-FFFFFF/batchrun/internal/source"
	"github.com/spf13/afero"
)

var (
	// ErrConfiguration wraps every problem found before a batch starts.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrReadConfig is returned when the config file cannot be read.
	ErrReadConfig = errors.New("failed to read config file")
	// ErrInvalidYaml is returned when the config file is not valid for Config.
	ErrInvalidYaml = errors.New("invalid YAML")
	// ErrWorkers is returned when the worker count is not positive.
	ErrWorkers = errors.New("workers must be a positive integer")
	// ErrNoInput is returned when no input file is given.
	ErrNoInput = errors.New("no input file given")
)

// FsFactory returns the filesystem config files are read from.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// Config is the full set of settings for one run.
type Config struct {
	Workers    int    `yaml:"-"`          // Admission bound, from the command line only
	InputFile  string `yaml:"-"`          // Item list, from the command line only
	Template   string `yaml:"template"`   // Command template, see source.Placeholder
	Shell      string `yaml:"shell"`      // Shell used to run commands, empty for the default
	KeepHeader bool   `yaml:"keepHeader"` // Do not discard the first line of the input
}

// Default returns the settings used when nothing else is given.
func Default() Config {
	return Config{
		Template: source.DefaultTemplate,
	}
}

// Load overlays the YAML file at path onto cfg. Fields absent from the file keep
// their value. Unknown fields are an error.
func Load(ctx context.Context, path string, cfg Config) (Config, error) {
	data, err := afero.ReadFile(FsFactory(), path)
	if err != nil {
		return cfg, errors.Join(ErrConfiguration, ErrReadConfig, err)
	}

	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
		return cfg, errors.Join(ErrConfiguration, ErrInvalidYaml, err)
	}

	ctxlog.Debug(ctx, "loaded config file", "path", path, "template", cfg.Template, "shell", cfg.Shell)

	return cfg, nil
}

// SourceOptions returns the options for source.Load.
func (c Config) SourceOptions() source.Options {
	return source.Options{
		Template:   c.Template,
		KeepHeader: c.KeepHeader,
	}
}

// Validate reports every problem with c at once, wrapped in ErrConfiguration.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Workers <= 0 {
		result = multierror.Append(result, fmt.Errorf("%w: got %d", ErrWorkers, c.Workers))
	}

	if c.InputFile == "" {
		result = multierror.Append(result, ErrNoInput)
	}

	if err := source.ValidateTemplate(c.Template); err != nil {
		result = multierror.Append(result, err)
	}

	if err := result.ErrorOrNil(); err != nil {
		return errors.Join(ErrConfiguration, err)
	}

	return nil
}
