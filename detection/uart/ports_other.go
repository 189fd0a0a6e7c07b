//go:build !linux

package uart

import "context"

// platformPorts has nothing to add beyond the enumerator here.
func platformPorts(_ context.Context) ([]serialPort, error) {
	return nil, nil
}

func enrichPort(_ *serialPort) {}
