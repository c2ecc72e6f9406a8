// Package config defines the CLI structure and configuration for PROXI.
package config

import (
	"github.com/proxi-pad/proxi/internal/cmd"
)

type Log struct {
	Level   string `help:"Log level: trace, debug, info, warn, error" default:"info" env:"PROXI_LOG_LEVEL"`
	File    string `help:"Log file path (default: none; logs only to console)" env:"PROXI_LOG_FILE"`
	RawFile string `help:"Raw HID report log file path (default: none)" env:"PROXI_LOG_RAW_FILE"`
}

// CLI is the root command structure for Kong CLI parsing.
type CLI struct {
	Log    `embed:"" prefix:"log."`
	Config string `help:"Additional config file (JSON, YAML or TOML)" type:"path" env:"PROXI_CONFIG"`

	Run         cmd.Run         `cmd:"" default:"withargs" help:"Bridge the Pro Controller to a virtual Xbox 360 pad (default)"`
	Devices     cmd.Devices     `cmd:"" help:"List connected Pro Controllers"`
	Calibration cmd.Calibration `cmd:"" help:"Read the stick calibration and export it as a profile"`
	Status      cmd.Status      `cmd:"" help:"Show the state of a running bridge"`
	Lights      cmd.Lights      `cmd:"" help:"Read or set the player LEDs of a running bridge"`
	Install     cmd.Install     `cmd:"" help:"Start PROXI automatically at login (Windows)"`
	Uninstall   cmd.Uninstall   `cmd:"" help:"Remove the login autostart entry (Windows)"`
}
