// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - the config and version commands. Neither opens the database.

package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/aljaroudi/t3lepathy/internal/config"
)

// VersionData is the --json output of version.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

func (r *Runner) version(args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(r.Out)
	}
	PrintVersion(r.Out)
	return nil
}

// configPath returns the --config path or the default one.
func configPath(args Args) (string, error) {
	if args.ConfigPath != "" {
		return args.ConfigPath, nil
	}
	return config.DefaultPath()
}

func (r *Runner) config(args Args) error {
	path, err := configPath(args)
	if err != nil {
		return err
	}
	p := NewArgParser(args.Raw)

	switch p.Subcommand() {
	case "", "show":
		if err := config.LoadDotEnv(r.DotEnv...); err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config", cfg).Print(r.Out)
		}
		fmt.Fprintln(r.Out, DimStyle.Render("# "+path))
		fmt.Fprint(r.Out, cfg.String())
		return nil

	case "path":
		if args.JSON {
			return NewJSONResponse("config", map[string]string{"path": path}).Print(r.Out)
		}
		fmt.Fprintln(r.Out, path)
		return nil

	case "init":
		if _, err := os.Stat(path); err == nil && !p.BoolFlag("force") {
			return &ValidationError{Field: "config", Value: path, Reason: "file exists", Example: "t3lepathy config init --force"}
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse("config", map[string]string{"path": path}).Print(r.Out)
		}
		fmt.Fprintf(r.Out, "%s wrote %s\n", SuccessStyle.Render("✓"), path)
		return nil

	default:
		return ErrInvalidValue("config subcommand", p.Subcommand(), "show, path or init")
	}
}
