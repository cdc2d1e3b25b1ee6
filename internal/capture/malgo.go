package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/malgo"
)

// MalgoProvider captures from a local input device through miniaudio.
// DeviceName selects the first device whose name contains it; empty means
// the system default.
type MalgoProvider struct {
	DeviceName string
}

func (p MalgoProvider) Open(ctx context.Context, c Constraints) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	devices, err := mctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(mctx)
		return nil, fmt.Errorf("list capture devices: %w", err)
	}
	if len(devices) == 0 {
		freeContext(mctx)
		return nil, ErrNoDevice
	}

	d := &malgoDevice{ctx: mctx, constraints: c}
	if p.DeviceName != "" {
		want := strings.ToLower(p.DeviceName)
		found := false
		for i := range devices {
			if strings.Contains(strings.ToLower(devices[i].Name()), want) {
				d.id = devices[i].ID
				d.named = true
				found = true
				break
			}
		}
		if !found {
			freeContext(mctx)
			return nil, fmt.Errorf("%w: %q", ErrNoDevice, p.DeviceName)
		}
	}
	return d, nil
}

type malgoDevice struct {
	ctx         *malgo.AllocatedContext
	constraints Constraints
	id          malgo.DeviceID
	named       bool
	device      *malgo.Device
}

func (d *malgoDevice) Start(onData DataFunc) error {
	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = d.constraints.Channels
	cfg.SampleRate = d.constraints.SampleRate
	if d.named {
		cfg.Capture.DeviceID = d.id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			onData(in)
		},
	}
	dev, err := malgo.InitDevice(d.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	d.device = dev
	return nil
}

func (d *malgoDevice) Stop() error {
	if d.device == nil {
		return nil
	}
	return d.device.Stop()
}

func (d *malgoDevice) Close() {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		freeContext(d.ctx)
		d.ctx = nil
	}
}

func freeContext(c *malgo.AllocatedContext) {
	_ = c.Uninit()
	c.Free()
}
