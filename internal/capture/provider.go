package capture

import (
	"errors"
	"fmt"

	"github.com/ayusman/bodydetect/internal/frame"
)

// ErrNoCamera is returned when no camera is configured for a lens facing.
var ErrNoCamera = errors.New("no camera for lens facing")

// Provider hands out the camera for each lens facing.
type Provider interface {
	// HasCamera reports whether a camera exists for facing.
	HasCamera(facing Facing) bool
	// Camera returns an unopened camera for facing.
	Camera(facing Facing) (Camera, error)
}

// DeviceProvider maps lens facings to OpenCV capture devices.
type DeviceProvider struct {
	devices map[Facing]Options
	pool    *frame.Pool
}

// NewDeviceProvider creates a provider over the configured devices.
func NewDeviceProvider(devices map[Facing]Options, pool *frame.Pool) *DeviceProvider {
	return &DeviceProvider{devices: devices, pool: pool}
}

// HasCamera implements Provider.
func (p *DeviceProvider) HasCamera(facing Facing) bool {
	_, ok := p.devices[facing]
	return ok
}

// Camera implements Provider.
func (p *DeviceProvider) Camera(facing Facing) (Camera, error) {
	opts, ok := p.devices[facing]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCamera, facing)
	}
	return NewCamera(opts, p.pool), nil
}
