package procon

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sstallion/go-hid"
)

// DeviceInfo describes an enumerated HID device.
type DeviceInfo struct {
	Path         string `json:"path"`
	VendorID     uint16 `json:"vendorId"`
	ProductID    uint16 `json:"productId"`
	Serial       string `json:"serial"`
	Manufacturer string `json:"manufacturer"`
	Product      string `json:"product"`
	Interface    int    `json:"interface"`
}

// IsProController reports whether the device looks like a Pro Controller,
// either by product string prefix or by its USB ids.
func (d DeviceInfo) IsProController(namePrefix string) bool {
	if namePrefix == "" {
		namePrefix = DefaultNameMatch
	}
	if strings.HasPrefix(strings.ToLower(d.Product), strings.ToLower(namePrefix)) {
		return true
	}
	return d.VendorID == VendorNintendo && d.ProductID == ProductProPad
}

// Init initializes the HID library. Call Exit when done.
func Init() error { return hid.Init() }

// Exit releases HID library resources.
func Exit() error { return hid.Exit() }

// Enumerate lists every HID device visible to the process.
func Enumerate() ([]DeviceInfo, error) {
	var out []DeviceInfo
	err := hid.Enumerate(hid.VendorIDAny, hid.ProductIDAny, func(info *hid.DeviceInfo) error {
		out = append(out, DeviceInfo{
			Path:         info.Path,
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Serial:       info.SerialNbr,
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
			Interface:    info.InterfaceNbr,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate hid: %w", err)
	}
	return out, nil
}

// Select returns the first Pro Controller in infos.
func Select(infos []DeviceInfo, namePrefix string) (DeviceInfo, error) {
	for _, info := range infos {
		if info.IsProController(namePrefix) {
			return info, nil
		}
	}
	return DeviceInfo{}, ErrNotFound
}

// OpenPath opens a HID device by platform path.
func OpenPath(path string) (Device, error) {
	d, err := hid.OpenPath(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &hidDevice{d: d}, nil
}

// Finder returns an OpenFunc that opens path when set, otherwise the first
// device matching namePrefix. The lookup is repeated on every call, since a
// reset or replug can change the platform path.
func Finder(path, namePrefix string) OpenFunc {
	return FinderWith(path, namePrefix, Enumerate, OpenPath)
}

// FinderWith is Finder over custom enumerate and open functions.
func FinderWith(path, namePrefix string, enumerate func() ([]DeviceInfo, error), openPath func(string) (Device, error)) OpenFunc {
	return func() (Device, error) {
		if path != "" {
			return openPath(path)
		}
		infos, err := enumerate()
		if err != nil {
			return nil, err
		}
		info, err := Select(infos, namePrefix)
		if err != nil {
			return nil, err
		}
		return openPath(info.Path)
	}
}

// hidDevice adapts *hid.Device to Device.
type hidDevice struct {
	d *hid.Device
}

func (h *hidDevice) Read(p []byte) (int, error)  { return h.d.Read(p) }
func (h *hidDevice) Write(p []byte) (int, error) { return h.d.Write(p) }
func (h *hidDevice) Close() error                { return h.d.Close() }

func (h *hidDevice) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	n, err := h.d.ReadWithTimeout(p, timeout)
	if errors.Is(err, hid.ErrTimeout) || (err == nil && n == 0) {
		return 0, ErrTimeout
	}
	return n, err
}
