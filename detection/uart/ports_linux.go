//go:build linux

package uart

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// sysRoot and devRoot are swapped out in tests.
var (
	sysRoot = "/sys"
	devRoot = "/dev"
)

// platformPorts returns on-board UARTs: sensors are often wired straight
// to a single board computer's GPIO header rather than through USB.
func platformPorts(_ context.Context) ([]serialPort, error) {
	var ports []serialPort

	patterns := []string{"serial[0-9]", "ttyAMA*", "ttyTHS*"}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(devRoot, pattern))
		if err != nil {
			continue
		}

		for _, path := range matches {
			if _, err := os.Stat(path); err == nil {
				ports = append(ports, serialPort{
					Path: path,
					Name: filepath.Base(path),
				})
			}
		}
	}

	return ports, nil
}

// enrichPort fills in the USB manufacturer, which the enumerator does not
// report, by walking up the tty's sysfs device tree.
func enrichPort(port *serialPort) {
	devicePath := filepath.Join(sysRoot, "class", "tty", port.Name, "device")
	resolved, err := filepath.EvalSymlinks(devicePath)
	if err != nil || !strings.Contains(resolved, "/usb") {
		return
	}
	readUSBAttributes(port, resolved)
}

// readUSBAttributes reads USB device attributes by walking up the device tree
func readUSBAttributes(port *serialPort, devicePath string) {
	current := devicePath
	for range 10 {
		if readUSBIdentifiers(port, current) {
			return
		}

		current = filepath.Dir(current)
		if current == "/" || current == "." || !strings.HasPrefix(current, sysRoot) {
			return
		}
	}
}

// readUSBIdentifiers reads vendor/product IDs and descriptors from the USB
// device node at path. It reports false when path is not that node.
func readUSBIdentifiers(port *serialPort, path string) bool {
	cleanPath := filepath.Clean(path)
	if !strings.HasPrefix(cleanPath, filepath.Clean(sysRoot)+string(filepath.Separator)) {
		return false
	}

	vid, err := readAttr(cleanPath, "idVendor")
	if err != nil {
		return false
	}
	pid, err := readAttr(cleanPath, "idProduct")
	if err != nil {
		return false
	}

	if port.VIDPID == "" {
		port.VIDPID = strings.ToUpper(vid + ":" + pid)
	}
	if v, err := readAttr(cleanPath, "manufacturer"); err == nil {
		port.Manufacturer = v
	}
	if port.Product == "" {
		if v, err := readAttr(cleanPath, "product"); err == nil {
			port.Product = v
		}
	}
	if port.SerialNumber == "" {
		if v, err := readAttr(cleanPath, "serial"); err == nil {
			port.SerialNumber = v
		}
	}
	return true
}

func readAttr(dir, name string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 -- dir is validated to be under sysRoot
	if err != nil {
		return "", err //nolint:wrapcheck // callers only test for presence
	}
	return strings.TrimSpace(string(b)), nil
}
