//go:build !windows

package cmd

import (
	"errors"
	"log/slog"
)

var errAutorunUnsupported = errors.New("autostart install is only supported on Windows; use your service manager to run 'proxi run'")

func install(string, []string, *slog.Logger) error { return errAutorunUnsupported }

func uninstall(*slog.Logger) error { return errAutorunUnsupported }
