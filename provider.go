package cgpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// deviceProvider exposes a Device through the gpucontext interfaces so
// libraries written against gpucontext (2D renderers, UI toolkits) can share
// it.
type deviceProvider struct {
	device *Device
	queue  *Queue
	format gputypes.TextureFormat
}

// Provider returns a gpucontext.DeviceProvider backed by the device and
// queue q. format is the surface format reported to consumers; pass
// TextureFormatUndefined when rendering headless.
func (d *Device) Provider(q *Queue, format gputypes.TextureFormat) gpucontext.DeviceProvider {
	return &deviceProvider{device: d, queue: q, format: format}
}

func (p *deviceProvider) Device() gpucontext.Device { return p.device }

func (p *deviceProvider) Queue() gpucontext.Queue { return p.queue }

func (p *deviceProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }

func (p *deviceProvider) Adapter() gpucontext.Adapter { return p.device.adapter }

func (p *deviceProvider) AdapterInfo() gpucontext.AdapterInfo {
	info := p.device.adapter.detail.Info
	return gpucontext.AdapterInfo{Name: info.Name, Type: adapterType(info.DeviceType)}
}

func adapterType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}
