//go:build !windows

package configpaths

import (
	"os"
	"path/filepath"
)

// ProfileDir returns the directory calibration profiles are stored in.
// On Unix, root services use /etc/proxi.
func ProfileDir() (string, error) {
	if os.Geteuid() == 0 {
		return systemConfigDir(), nil
	}
	return DefaultConfigDir()
}

func systemConfigDir() string {
	return filepath.Join(string(os.PathSeparator), "etc", appDir)
}
