package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/proxi-pad/proxi/internal/bridge"
	"github.com/proxi-pad/proxi/internal/calibfile"
	"github.com/proxi-pad/proxi/internal/log"
	"github.com/proxi-pad/proxi/internal/notify"
	"github.com/proxi-pad/proxi/internal/server/api"
	"github.com/proxi-pad/proxi/internal/server/api/handler"
	"github.com/proxi-pad/proxi/internal/server/status"
	"github.com/proxi-pad/proxi/internal/sink"
	"github.com/proxi-pad/proxi/internal/tray"
	"github.com/proxi-pad/proxi/procon"
)

// Run bridges the controller to a virtual Xbox 360 pad until interrupted.
type Run struct {
	Target `embed:""`

	Calibration string `help:"Calibration profile (.json, .yaml or .toml) replacing the controller's stick calibration; reloaded on change" type:"path" env:"PROXI_CALIBRATION"`
	Tray        bool   `help:"Show a system tray icon" env:"PROXI_TRAY"`
	Notify      bool   `help:"Show desktop notifications when the controller disconnects or comes back" env:"PROXI_NOTIFY"`

	Bridge     bridge.Config    `embed:""`
	Controller procon.Config    `embed:"" prefix:"controller."`
	Sink       sink.Config      `embed:""`
	API        api.ServerConfig `embed:"" prefix:"api."`
	HTTP       status.Config    `embed:"" prefix:"http."`
}

func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var override *procon.Calibration
	if r.Calibration != "" {
		p, err := calibfile.Load(r.Calibration)
		if err != nil {
			return err
		}
		cal := calibfile.ToCalibration(p)
		override = &cal
	}

	if err := procon.Init(); err != nil {
		return fmt.Errorf("hid init: %w", err)
	}
	defer func() { _ = procon.Exit() }()

	open, name, err := r.Target.resolve()
	if err != nil {
		return err
	}
	ctrl, err := procon.New(open, r.Controller, logger, rawLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Detach(); err != nil {
			logger.Debug("Detach failed", "error", err)
		}
		_ = ctrl.Close()
	}()

	logger.Info("Attaching controller", "device", name)
	if err := ctrl.Attach(ctx); err != nil {
		return err
	}
	logger.Info("Controller attached", "device", name)

	sk, err := sink.Open(ctx, r.Sink, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := sk.Close(); err != nil {
			logger.Warn("Closing virtual pad failed", "error", err)
		}
	}()

	opts := []bridge.Option{bridge.WithDeviceName(name)}
	if r.Notify {
		opts = append(opts, bridge.WithStateHook(notify.StateHook(notify.Desktop{}, logger)))
	}
	b, err := bridge.New(ctrl, sk, r.Bridge, logger, opts...)
	if err != nil {
		return err
	}
	if override != nil {
		b.SetCalibrationOverride(override)
		logger.Info("Using calibration profile", "file", r.Calibration)
	}

	if r.API.Addr != "" {
		srv := api.New(r.API.Addr, logger)
		handler.Register(srv.Router(), b, Version)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("control api: %w", err)
		}
		defer srv.Close()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	if r.HTTP.Addr != "" {
		g.Go(func() error { return status.Serve(gctx, r.HTTP.Addr, status.NewHandler(b), logger) })
	}
	if r.Calibration != "" {
		g.Go(func() error {
			return calibfile.Watch(gctx, r.Calibration, calibfile.DefaultDebounce, func(p calibfile.Profile, err error) {
				if err != nil {
					logger.Warn("Calibration profile not reloaded", "file", r.Calibration, "error", err)
					return
				}
				cal := calibfile.ToCalibration(p)
				b.SetCalibrationOverride(&cal)
				logger.Info("Calibration profile reloaded", "file", r.Calibration)
			})
		})
	}
	logger.Info("Forwarding input", "sink", sk.Name())

	if r.Tray {
		tray.Run(gctx, b.Status, stop, logger)
	}
	err = g.Wait()
	logger.Info("Bridge stopped")
	return err
}
