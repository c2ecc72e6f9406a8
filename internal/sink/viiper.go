package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/proxi-pad/proxi/apiclient"
	"github.com/proxi-pad/proxi/device/xbox360"
)

const (
	viiperDeviceType = "xbox360"
	maxAutoBusID     = 100
)

// ViiperConfig configures the VIIPER sink.
type ViiperConfig struct {
	Addr  string `help:"VIIPER API server address" default:"localhost:3242" env:"PROXI_VIIPER_ADDR"`
	BusID uint32 `help:"VIIPER bus to attach the pad to (0 picks the lowest existing bus or creates one)" default:"0" env:"PROXI_VIIPER_BUS"`

	apiclient.Config `embed:"" prefix:"api."`
}

// Viiper emulates the pad through a VIIPER server.
type Viiper struct {
	api    *apiclient.Client
	stream *apiclient.DeviceStream
	logger *slog.Logger

	busID      uint32
	devID      string
	createdBus bool

	rumble chan xbox360.XRumbleState
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// OpenViiper adds an xbox360 device to a VIIPER bus and opens its stream.
func OpenViiper(ctx context.Context, cfg ViiperConfig, logger *slog.Logger) (*Viiper, error) {
	return openViiper(ctx, apiclient.NewWithConfig(cfg.Addr, &cfg.Config), cfg.BusID, logger)
}

func openViiper(ctx context.Context, api *apiclient.Client, busID uint32, logger *slog.Logger) (*Viiper, error) {
	v := &Viiper{api: api, logger: logger, rumble: make(chan xbox360.XRumbleState, 1)}

	if err := v.selectBus(ctx, busID); err != nil {
		return nil, err
	}

	stream, dev, err := api.AddDeviceAndConnect(ctx, v.busID, viiperDeviceType)
	if dev != nil {
		v.devID = dev.DevId
	}
	if err != nil {
		v.cleanup()
		return nil, fmt.Errorf("viiper add device: %w", err)
	}
	v.stream = stream
	logger.Info("VIIPER device created", "bus", v.busID, "device", v.devID, "addr", api.Transport().Addr())

	rctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.wg.Add(1)
	go v.readRumble(rctx)
	return v, nil
}

func (v *Viiper) selectBus(ctx context.Context, want uint32) error {
	buses, err := v.api.BusList(ctx)
	if err != nil {
		return fmt.Errorf("viiper bus list: %w", err)
	}
	if want != 0 {
		v.busID = want
		if slices.Contains(buses.Buses, want) {
			return nil
		}
		if _, err := v.api.BusCreate(ctx, want); err != nil {
			return fmt.Errorf("viiper bus create %d: %w", want, err)
		}
		v.createdBus = true
		return nil
	}
	if len(buses.Buses) > 0 {
		v.busID = slices.Min(buses.Buses)
		v.logger.Debug("Using existing VIIPER bus", "bus", v.busID)
		return nil
	}
	var createErr error
	for try := uint32(1); try <= maxAutoBusID; try++ {
		r, err := v.api.BusCreate(ctx, try)
		if err == nil {
			v.busID = r.BusID
			v.createdBus = true
			v.logger.Debug("Created VIIPER bus", "bus", v.busID)
			return nil
		}
		createErr = err
	}
	return fmt.Errorf("viiper bus create: %w", createErr)
}

func (v *Viiper) readRumble(ctx context.Context) {
	defer v.wg.Done()
	defer close(v.rumble)
	frames, errc := v.stream.ReadFrames(ctx, xbox360.RumbleStateSize)
	for f := range frames {
		var r xbox360.XRumbleState
		if err := r.UnmarshalBinary(f); err != nil {
			continue
		}
		pushRumble(v.rumble, r)
	}
	if err := <-errc; err != nil && ctx.Err() == nil {
		v.logger.Warn("VIIPER stream closed", "error", err)
	}
}

func (v *Viiper) Name() string { return KindVIIPER }

func (v *Viiper) Update(_ context.Context, st xbox360.InputState) error {
	_ = v.stream.SetWriteDeadline(time.Now().Add(time.Second))
	return v.stream.WriteBinary(&st)
}

func (v *Viiper) Rumble() <-chan xbox360.XRumbleState { return v.rumble }

// Close closes the stream and removes the device (and the bus if this sink
// created it).
func (v *Viiper) Close() error {
	var err error
	v.once.Do(func() {
		if v.cancel != nil {
			v.cancel()
		}
		if v.stream != nil {
			err = v.stream.Close()
		}
		v.wg.Wait()
		err = errors.Join(err, v.cleanup())
	})
	return err
}

func (v *Viiper) cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var errs []error
	if v.devID != "" {
		if _, err := v.api.DeviceRemove(ctx, v.busID, v.devID); err != nil {
			errs = append(errs, fmt.Errorf("viiper device remove: %w", err))
		} else {
			v.logger.Info("VIIPER device removed", "bus", v.busID, "device", v.devID)
		}
	}
	if v.createdBus {
		if _, err := v.api.BusRemove(ctx, v.busID); err != nil {
			errs = append(errs, fmt.Errorf("viiper bus remove: %w", err))
		}
	}
	return errors.Join(errs...)
}
