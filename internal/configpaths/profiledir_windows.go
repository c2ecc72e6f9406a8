//go:build windows

package configpaths

// ProfileDir returns the directory calibration profiles are stored in.
func ProfileDir() (string, error) {
	return DefaultConfigDir()
}

func systemConfigDir() string { return "" }
