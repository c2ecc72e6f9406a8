// Package cmd implements the PROXI subcommands.
package cmd

import (
	"errors"
	"fmt"

	"github.com/proxi-pad/proxi/procon"
)

// Version is reported by the control API ping endpoint.
var Version = "dev"

// Target selects which controller to open.
type Target struct {
	Device string `help:"HID path of the controller (default: first Pro Controller found)" env:"PROXI_DEVICE"`
	Name   string `help:"Product name prefix used to find the controller" default:"pro controller" env:"PROXI_DEVICE_NAME"`
}

// resolve checks that a controller is present and returns the opener plus a
// display name. Without an explicit path the opener searches by name on every
// call, so re-enumeration after a reset or replug is picked up.
func (t Target) resolve() (procon.OpenFunc, string, error) {
	return t.resolveWith(procon.Enumerate, procon.OpenPath)
}

func (t Target) resolveWith(enumerate func() ([]procon.DeviceInfo, error), openPath func(string) (procon.Device, error)) (procon.OpenFunc, string, error) {
	if t.Device != "" {
		return procon.FinderWith(t.Device, t.Name, enumerate, openPath), t.Device, nil
	}
	infos, err := enumerate()
	if err != nil {
		return nil, "", err
	}
	info, err := procon.Select(infos, t.Name)
	if errors.Is(err, procon.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: connect it over USB and make sure no other program (e.g. Steam) holds it", err)
	}
	if err != nil {
		return nil, "", err
	}
	name := info.Product
	if name == "" {
		name = info.Path
	}
	return procon.FinderWith("", t.Name, enumerate, openPath), name, nil
}
