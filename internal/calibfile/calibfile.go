// Package calibfile stores stick calibration profiles as JSON, YAML or TOML.
package calibfile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"

	"github.com/proxi-pad/proxi/apitypes"
	"github.com/proxi-pad/proxi/procon"
)

// Profile is the on-disk calibration of both sticks.
type Profile = apitypes.CalibrationResponse

// Format is a profile encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// DefaultDebounce collapses editor save bursts into one reload.
const DefaultDebounce = 500 * time.Millisecond

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unknown profile extension %q (want .json, .yaml, .yml or .toml)", filepath.Ext(path))
}

// FromCalibration converts the controller's calibration to a profile.
func FromCalibration(c procon.Calibration) Profile {
	return Profile{
		Left:  fromStick(c.Left, c.LeftDeadzone),
		Right: fromStick(c.Right, c.RightDeadzone),
	}
}

func fromStick(s procon.StickCalibration, dz uint16) apitypes.StickCalibration {
	return apitypes.StickCalibration{
		XMaxAbove: s[procon.CalXMaxAbove],
		YMaxAbove: s[procon.CalYMaxAbove],
		XCenter:   s[procon.CalXCenter],
		YCenter:   s[procon.CalYCenter],
		XMinBelow: s[procon.CalXMinBelow],
		YMinBelow: s[procon.CalYMinBelow],
		Deadzone:  dz,
	}
}

// ToCalibration converts a profile to the controller's calibration.
func ToCalibration(p Profile) procon.Calibration {
	l, ldz := toStick(p.Left)
	r, rdz := toStick(p.Right)
	return procon.Calibration{Left: l, Right: r, LeftDeadzone: ldz, RightDeadzone: rdz}
}

func toStick(s apitypes.StickCalibration) (procon.StickCalibration, uint16) {
	var out procon.StickCalibration
	out[procon.CalXMaxAbove] = s.XMaxAbove
	out[procon.CalYMaxAbove] = s.YMaxAbove
	out[procon.CalXCenter] = s.XCenter
	out[procon.CalYCenter] = s.YCenter
	out[procon.CalXMinBelow] = s.XMinBelow
	out[procon.CalYMinBelow] = s.YMinBelow
	return out, s.Deadzone
}

// Validate rejects values outside the 12-bit range and sticks without a
// usable span.
func Validate(p Profile) error {
	for _, side := range []struct {
		name string
		s    apitypes.StickCalibration
	}{{"left", p.Left}, {"right", p.Right}} {
		for _, v := range []uint16{side.s.XMaxAbove, side.s.YMaxAbove, side.s.XCenter, side.s.YCenter, side.s.XMinBelow, side.s.YMinBelow, side.s.Deadzone} {
			if v > 0xfff {
				return fmt.Errorf("%s stick: value 0x%x exceeds 12 bits", side.name, v)
			}
		}
		if side.s.XMaxAbove == 0 && side.s.XMinBelow == 0 && side.s.YMaxAbove == 0 && side.s.YMinBelow == 0 {
			return fmt.Errorf("%s stick: empty calibration", side.name)
		}
	}
	return nil
}

// Marshal encodes p in format f.
func Marshal(p Profile, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		b, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(p)
	case FormatTOML:
		return toml.Marshal(p)
	}
	return nil, fmt.Errorf("unknown profile format %q", f)
}

// Unmarshal decodes a profile in format f. Unknown fields are rejected for
// JSON and YAML.
func Unmarshal(data []byte, f Format) (Profile, error) {
	var p Profile
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Profile{}, fmt.Errorf("decode json profile: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Profile{}, fmt.Errorf("decode yaml profile: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &p); err != nil {
			return Profile{}, fmt.Errorf("decode toml profile: %w", err)
		}
	default:
		return Profile{}, fmt.Errorf("unknown profile format %q", f)
	}
	return p, nil
}

// Load reads and validates the profile at path.
func Load(path string) (Profile, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return Profile{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	p, err := Unmarshal(data, f)
	if err != nil {
		return Profile{}, err
	}
	if err := Validate(p); err != nil {
		return Profile{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Save writes p to path atomically, in the format its extension names.
func Save(path string, p Profile) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(p, f)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	return writeFile(path, data)
}

// Watch reloads path whenever it changes and hands the result to fn, until
// ctx is done. The parent directory is watched so atomic replaces are seen.
func Watch(ctx context.Context, path string, debounce time.Duration, fn func(Profile, error)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case <-timer.C:
			fn(Load(abs))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", abs, err)
		}
	}
}
