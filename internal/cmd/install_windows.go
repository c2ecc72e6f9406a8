//go:build windows

package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sys/windows/registry"
)

const (
	runKeyPath  = `Software\Microsoft\Windows\CurrentVersion\Run`
	runValueKey = "PROXI"
)

func install(exePath string, args []string, logger *slog.Logger) error {
	previous, err := registeredExe()
	if err != nil {
		return err
	}

	value := autorunCommand(exePath, args)
	key, _, err := registry.CreateKey(registry.CURRENT_USER, runKeyPath, registry.ALL_ACCESS)
	if err != nil {
		return err
	}
	defer key.Close()
	if err := key.SetStringValue(runValueKey, value); err != nil {
		return err
	}

	// only one bridge can own the controller
	if previous != "" {
		if err := stopInstances(previous, logger); err != nil {
			return fmt.Errorf("stop previous instance: %w", err)
		}
	}
	if err := exec.Command(exePath, append([]string{"run"}, args...)...).Start(); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	logger.Info("PROXI autostart installed", "command", value)
	return nil
}

func uninstall(logger *slog.Logger) error {
	registered, err := registeredExe()
	if err != nil {
		return err
	}

	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	switch {
	case errors.Is(err, registry.ErrNotExist):
	case err != nil:
		return err
	default:
		defer key.Close()
		if err := key.DeleteValue(runValueKey); err != nil && !errors.Is(err, registry.ErrNotExist) {
			return err
		}
	}

	if registered != "" {
		if err := stopInstances(registered, logger); err != nil {
			return fmt.Errorf("stop autostarted instance: %w", err)
		}
	}
	logger.Info("PROXI autostart entry removed")
	return nil
}

// registeredExe returns the executable of the current autostart entry, or ""
// when there is none.
func registeredExe() (string, error) {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer key.Close()

	val, _, err := key.GetStringValue(runValueKey)
	if errors.Is(err, registry.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return autorunExe(val), nil
}

// stopInstances terminates every process running exe except this one.
func stopInstances(exe string, logger *slog.Logger) error {
	script := fmt.Sprintf(
		"$ErrorActionPreference='SilentlyContinue';$t='%s';Get-CimInstance Win32_Process | Where-Object { $_.ExecutablePath -eq $t } | Select-Object -ExpandProperty ProcessId",
		strings.ReplaceAll(exe, "'", "''"),
	)
	output, err := exec.Command("powershell", "-NoProfile", "-Command", script).CombinedOutput()
	if err != nil {
		return fmt.Errorf("process query: %w: %s", err, strings.TrimSpace(string(output)))
	}

	self := os.Getpid()
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		pid, err := strconv.Atoi(strings.TrimSpace(sc.Text()))
		if err != nil || pid == self {
			continue
		}
		if out, err := exec.Command("taskkill", "/PID", strconv.Itoa(pid), "/T", "/F").CombinedOutput(); err != nil {
			return fmt.Errorf("taskkill %d: %w: %s", pid, err, strings.TrimSpace(string(out)))
		}
		logger.Info("Stopped running instance", "pid", pid)
	}
	return sc.Err()
}
