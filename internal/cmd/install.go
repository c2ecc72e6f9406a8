package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Install registers PROXI to start with the user session.
type Install struct {
	Args []string `arg:"" optional:"" help:"Extra arguments for the autostarted 'run' command"`
}

// Uninstall removes the autostart entry.
type Uninstall struct{}

func (c *Install) Run(logger *slog.Logger) error {
	exe, err := currentExecutable()
	if err != nil {
		return err
	}
	if isGoRun(exe) {
		return errors.New("cannot install from 'go run'")
	}
	return install(exe, c.Args, logger)
}

func (c *Uninstall) Run(logger *slog.Logger) error {
	exe, err := currentExecutable()
	if err != nil {
		return err
	}
	if isGoRun(exe) {
		return errors.New("cannot uninstall from 'go run'")
	}
	return uninstall(logger)
}

func isGoRun(exe string) bool {
	return strings.Contains(exe, "go-build")
}

func currentExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Abs(exe)
}

// autorunCommand builds the command line stored in the autostart entry.
func autorunCommand(exe string, args []string) string {
	parts := []string{`"` + exe + `"`, "run"}
	for _, a := range args {
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// autorunExe extracts the executable path from an autostart command line.
func autorunExe(cmdline string) string {
	s := strings.TrimSpace(cmdline)
	if s == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(s, `"`); ok {
		if end := strings.Index(rest, `"`); end >= 0 {
			return filepath.Clean(rest[:end])
		}
		return filepath.Clean(rest)
	}
	return filepath.Clean(strings.Fields(s)[0])
}
