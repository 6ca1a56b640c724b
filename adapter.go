package cgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Adapter is a read-only view of one physical GPU.
type Adapter struct {
	instance   *Instance
	native     NativeAdapter
	detail     AdapterDetail
	families   []QueueFamily
	extensions map[string]bool

	// familyIndex[t] is the family serving queue type t, or -1.
	familyIndex [queueTypeCount]int
}

func newAdapter(inst *Instance, na NativeAdapter) *Adapter {
	a := &Adapter{
		instance:   inst,
		native:     na,
		detail:     na.Detail(),
		families:   na.QueueFamilies(),
		extensions: toSet(na.Extensions()),
	}
	for t := range queueTypeCount {
		a.familyIndex[t] = selectQueueFamily(a.families, t)
	}
	return a
}

// adapterRank orders device types: discrete, integrated, virtual, CPU, other.
func adapterRank(t gputypes.DeviceType) int {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return 0
	case gputypes.DeviceTypeIntegratedGPU:
		return 1
	case gputypes.DeviceTypeVirtualGPU:
		return 2
	case gputypes.DeviceTypeCPU:
		return 3
	default:
		return 4
	}
}

// selectQueueFamily picks the family for a queue type: graphics takes the
// first graphics-capable family, compute and transfer take dedicated
// families only, tile mapping takes a sparse-binding family.
func selectQueueFamily(families []QueueFamily, t QueueType) int {
	for i, f := range families {
		if f.Count == 0 {
			continue
		}
		switch t {
		case QueueGraphics:
			if f.Flags&QueueFlagGraphics != 0 {
				return i
			}
		case QueueCompute:
			if f.Flags&QueueFlagCompute != 0 && f.Flags&QueueFlagGraphics == 0 {
				return i
			}
		case QueueTransfer:
			if f.Flags&QueueFlagTransfer != 0 && f.Flags&(QueueFlagCompute|QueueFlagGraphics) == 0 {
				return i
			}
		case QueueTileMapping:
			if f.Flags&QueueFlagSparseBinding != 0 {
				return i
			}
		}
	}
	return -1
}

// Detail returns the adapter capabilities.
func (a *Adapter) Detail() AdapterDetail { return a.detail }

// Info returns the adapter identification.
func (a *Adapter) Info() gputypes.AdapterInfo { return a.detail.Info }

// Instance returns the owning instance.
func (a *Adapter) Instance() *Instance { return a.instance }

// QueueCount returns how many queues of type t the adapter exposes.
func (a *Adapter) QueueCount(t QueueType) uint32 {
	if t >= queueTypeCount || a.familyIndex[t] < 0 {
		return 0
	}
	return a.families[a.familyIndex[t]].Count
}

// QueueFamilyIndex returns the family serving queue type t.
func (a *Adapter) QueueFamilyIndex(t QueueType) (uint32, error) {
	if t >= queueTypeCount || a.familyIndex[t] < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoQueue, t)
	}
	return uint32(a.familyIndex[t]), nil
}

// HasExtension reports whether the adapter supports a device extension.
func (a *Adapter) HasExtension(name string) bool { return a.extensions[name] }

// SurfaceCapabilities queries what the adapter can present to s.
func (a *Adapter) SurfaceCapabilities(s *Surface) (*SurfaceCapabilities, error) {
	caps, err := a.native.SurfaceCapabilities(s.native)
	if err != nil {
		return nil, logNative(a.instance.log, "SurfaceCapabilities", err)
	}
	return caps, nil
}

// familyOrIgnored maps a queue type to its family for ownership transfers.
func (a *Adapter) familyOrIgnored(t QueueType) uint32 {
	if t >= queueTypeCount || a.familyIndex[t] < 0 {
		return QueueFamilyIgnored
	}
	return uint32(a.familyIndex[t])
}

func (a *Adapter) String() string {
	return fmt.Sprintf("%s (%s)", a.detail.Info.Name, a.detail.Info.DeviceType)
}
