package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/proxi-pad/proxi/procon"
)

// Devices lists HID devices that look like Pro Controllers.
type Devices struct {
	All  bool   `help:"List every HID device, not only Pro Controllers"`
	JSON bool   `help:"Print JSON instead of a table"`
	Name string `help:"Product name prefix used to recognize the controller" default:"pro controller" env:"PROXI_DEVICE_NAME"`
}

func (c *Devices) Run(logger *slog.Logger) error {
	if err := procon.Init(); err != nil {
		return fmt.Errorf("hid init: %w", err)
	}
	defer func() { _ = procon.Exit() }()

	infos, err := procon.Enumerate()
	if err != nil {
		return err
	}
	logger.Debug("Enumerated HID devices", "count", len(infos))
	return writeDevices(os.Stdout, filterDevices(infos, c.All, c.Name), c.JSON)
}

func filterDevices(infos []procon.DeviceInfo, all bool, name string) []procon.DeviceInfo {
	out := []procon.DeviceInfo{}
	for _, info := range infos {
		if all || info.IsProController(name) {
			out = append(out, info)
		}
	}
	return out
}

func writeDevices(w io.Writer, infos []procon.DeviceInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, "no matching HID devices")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VID:PID\tPRODUCT\tSERIAL\tPATH")
	for _, d := range infos {
		fmt.Fprintf(tw, "%04x:%04x\t%s\t%s\t%s\n", d.VendorID, d.ProductID, d.Product, d.Serial, d.Path)
	}
	return tw.Flush()
}
