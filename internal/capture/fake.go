package capture

import (
	"context"
	"sync"
	"sync/atomic"
)

// FakeProvider hands out FakeDevices. OpenErr and StartErr simulate
// platform failures.
type FakeProvider struct {
	OpenErr  error
	StartErr error

	mu      sync.Mutex
	devices []*FakeDevice
}

func (p *FakeProvider) Open(_ context.Context, c Constraints) (Device, error) {
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	d := &FakeDevice{Constraints: c, startErr: p.StartErr}
	p.mu.Lock()
	p.devices = append(p.devices, d)
	p.mu.Unlock()
	return d, nil
}

// Devices returns every device opened so far.
func (p *FakeProvider) Devices() []*FakeDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*FakeDevice, len(p.devices))
	copy(out, p.devices)
	return out
}

// Last returns the most recently opened device, or nil.
func (p *FakeProvider) Last() *FakeDevice {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.devices) == 0 {
		return nil
	}
	return p.devices[len(p.devices)-1]
}

// FakeDevice delivers audio only when Feed is called.
type FakeDevice struct {
	Constraints Constraints
	startErr    error

	mu      sync.Mutex
	onData  DataFunc
	running bool
	closed  atomic.Bool
}

func (d *FakeDevice) Start(onData DataFunc) error {
	if d.startErr != nil {
		return d.startErr
	}
	d.mu.Lock()
	d.onData = onData
	d.running = true
	d.mu.Unlock()
	return nil
}

// Feed pushes PCM into the session as a platform callback would. It is
// dropped once the device is stopped.
func (d *FakeDevice) Feed(pcm []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running && d.onData != nil {
		d.onData(pcm)
	}
}

func (d *FakeDevice) Stop() error {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	return nil
}

func (d *FakeDevice) Close() {
	d.closed.Store(true)
}

func (d *FakeDevice) Closed() bool {
	return d.closed.Load()
}
