package sim

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Device is a stand-in for a renderer-owned GPU device, used to check that
// sessions present through the caller's device instead of creating one.
type Device struct {
	format    gputypes.TextureFormat
	destroyed bool
}

type device struct{ owner *Device }

func (d *device) Poll(wait bool) {}
func (d *device) Destroy()       { d.owner.destroyed = true }

type queue struct{}

type adapter struct{}

// NewDevice returns a provider presenting in BGRA8.
func NewDevice() *Device {
	return &Device{format: gputypes.TextureFormatBGRA8Unorm}
}

// Provider exposes the device through the gpucontext interfaces.
func (d *Device) Provider() gpucontext.DeviceProvider {
	return &provider{d: d}
}

// Destroyed reports whether anything tore the device down.
func (d *Device) Destroyed() bool { return d.destroyed }

type provider struct{ d *Device }

func (p *provider) Device() gpucontext.Device             { return &device{owner: p.d} }
func (p *provider) Queue() gpucontext.Queue               { return &queue{} }
func (p *provider) Adapter() gpucontext.Adapter           { return &adapter{} }
func (p *provider) SurfaceFormat() gputypes.TextureFormat { return p.d.format }
func (p *provider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "sim", Type: gpucontext.AdapterTypeSoftware}
}
