package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/proxi-pad/proxi/internal/calibfile"
	"github.com/proxi-pad/proxi/internal/configpaths"
	"github.com/proxi-pad/proxi/internal/log"
	"github.com/proxi-pad/proxi/procon"
)

// Calibration attaches the controller and exports its stick calibration.
type Calibration struct {
	Target `embed:""`

	Output  string `short:"o" help:"Write the profile to this file (.json, .yaml or .toml) instead of stdout" type:"path"`
	Save    bool   `help:"Write the profile to the default profile location"`
	Format  string `help:"Output format for stdout" default:"yaml" enum:"json,yaml,toml"`
	Restore bool   `help:"Let the controller return to Bluetooth mode when done" default:"true" negatable:""`

	Controller procon.Config `embed:"" prefix:"controller."`
}

func (c *Calibration) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := procon.Init(); err != nil {
		return fmt.Errorf("hid init: %w", err)
	}
	defer func() { _ = procon.Exit() }()

	open, name, err := c.Target.resolve()
	if err != nil {
		return err
	}
	ctrl, err := procon.New(open, c.Controller, logger, rawLogger)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	logger.Info("Reading calibration", "device", name)
	if err := ctrl.Attach(ctx); err != nil {
		return err
	}
	if c.Restore {
		defer func() { _ = ctrl.Detach() }()
	}
	return c.export(os.Stdout, calibfile.FromCalibration(ctrl.Calibration()), logger)
}

func (c *Calibration) export(w io.Writer, p calibfile.Profile, logger *slog.Logger) error {
	path := c.Output
	if path == "" && c.Save {
		var err error
		if path, err = configpaths.DefaultProfilePath(); err != nil {
			return err
		}
	}
	if path != "" {
		if err := calibfile.Save(path, p); err != nil {
			return err
		}
		logger.Info("Calibration profile written", "file", path)
		return nil
	}
	data, err := calibfile.Marshal(p, calibfile.Format(c.Format))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
