// Package profiler measures GPU time between markers recorded into command
// buffers.
//
// Every frame in flight owns a timestamp query pool and a persistently
// mapped readback buffer of MaxTimestamps values. A frame is opened with
// Begin, split into labeled sections with Mark and closed with End, which
// resolves the timestamps into the readback buffer. The results become
// readable once the frame's submission completed, so Begin returns them
// for the previous use of the same slot:
//
//	f, _ := ring.Next()
//	f.Cmd.Begin()
//	last, _ := prof.Begin(f.Cmd, f.Index)
//	// ... shadow pass
//	prof.Mark(f.Cmd, f.Index, "shadows")
//	// ... main pass
//	prof.Mark(f.Cmd, f.Index, "main")
//	prof.End(f.Cmd, f.Index)
package profiler

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/cgpu"
)

// MaxTimestamps is the number of timestamps one frame can record,
// including the one written by Begin.
const MaxTimestamps = 128

// ErrFull is returned by Mark once a frame used all its timestamps.
var ErrFull = errors.New("profiler: frame timestamps exhausted")

// Sample is the GPU time of one labeled section.
type Sample struct {
	Label  string
	Micros float64
}

// Result is the timing of one frame.
type Result struct {
	Samples []Sample
	Total   float64 // microseconds from Begin to the last Mark
}

type slot struct {
	pool     *cgpu.QueryPool
	readback *cgpu.Buffer
	labels   []string
	resolved bool
}

// Profiler records timestamps for a fixed number of frames in flight.
type Profiler struct {
	log    *slog.Logger
	period float64 // nanoseconds per tick
	slots  []*slot
}

// New creates a profiler for frames frames in flight on queue q.
func New(d *cgpu.Device, q *cgpu.Queue, frames int) (*Profiler, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("profiler: %d frames in flight", frames)
	}
	p := &Profiler{log: d.Logger(), period: float64(q.TimestampPeriod())}
	for i := range frames {
		pool, err := d.CreateQueryPool(&cgpu.QueryPoolDescriptor{
			Name:  fmt.Sprintf("profiler timestamps %d", i),
			Type:  cgpu.QueryTypeTimestamp,
			Count: MaxTimestamps,
		})
		if err != nil {
			p.Free()
			return nil, fmt.Errorf("profiler: %w", err)
		}
		rb, err := d.CreateBuffer(&cgpu.BufferDescriptor{
			Name:        fmt.Sprintf("profiler readback %d", i),
			Size:        MaxTimestamps * 8,
			MemoryUsage: cgpu.MemoryUsageGPUToCPU,
			Flags:       cgpu.BufferFlagPersistentMap,
		})
		if err != nil {
			pool.Free()
			p.Free()
			return nil, fmt.Errorf("profiler: %w", err)
		}
		p.slots = append(p.slots, &slot{pool: pool, readback: rb})
	}
	return p, nil
}

func (p *Profiler) slot(frame uint32) *slot {
	return p.slots[int(frame)%len(p.slots)]
}

// Begin returns the timing of the last frame recorded in this slot, or nil,
// then resets the slot and writes the first timestamp. The slot's previous
// submission must have completed and cmd must be outside a pass.
func (p *Profiler) Begin(cmd *cgpu.CommandBuffer, frame uint32) (*Result, error) {
	s := p.slot(frame)
	var last *Result
	if s.resolved {
		last = p.read(s)
	}
	s.labels = s.labels[:0]
	s.resolved = false
	if err := cmd.ResetQueryPool(s.pool, 0, MaxTimestamps); err != nil {
		return last, err
	}
	if err := cmd.BeginQuery(s.pool, 0); err != nil {
		return last, err
	}
	s.labels = append(s.labels, "")
	return last, nil
}

// Mark writes a timestamp closing the section named label.
func (p *Profiler) Mark(cmd *cgpu.CommandBuffer, frame uint32, label string) error {
	s := p.slot(frame)
	if len(s.labels) == 0 {
		return fmt.Errorf("profiler: mark %q before Begin", label)
	}
	if len(s.labels) >= MaxTimestamps {
		return ErrFull
	}
	if err := cmd.EndQuery(s.pool, uint32(len(s.labels))); err != nil {
		return err
	}
	s.labels = append(s.labels, label)
	return nil
}

// End copies the frame's timestamps into the readback buffer. cmd must be
// outside a pass.
func (p *Profiler) End(cmd *cgpu.CommandBuffer, frame uint32) error {
	s := p.slot(frame)
	if len(s.labels) == 0 {
		return errors.New("profiler: End before Begin")
	}
	if err := cmd.ResolveQuery(s.pool, s.readback, 0, uint32(len(s.labels))); err != nil {
		return err
	}
	s.resolved = true
	return nil
}

func (p *Profiler) read(s *slot) *Result {
	data := s.readback.Mapped()
	ticks := make([]uint64, len(s.labels))
	for i := range ticks {
		ticks[i] = binary.NativeEndian.Uint64(data[i*8:])
	}
	r := &Result{Samples: make([]Sample, 0, len(ticks)-1)}
	for i := 1; i < len(ticks); i++ {
		r.Samples = append(r.Samples, Sample{Label: s.labels[i], Micros: p.micros(ticks[i-1], ticks[i])})
	}
	if n := len(ticks); n > 1 {
		r.Total = p.micros(ticks[0], ticks[n-1])
	}
	p.log.Debug("profiler: frame resolved", "sections", len(r.Samples), "total_us", r.Total)
	return r
}

// micros converts a tick interval; timestamps going backwards count as 0.
func (p *Profiler) micros(from, to uint64) float64 {
	if to < from {
		return 0
	}
	return float64(to-from) * p.period / 1000
}

// Free destroys the pools and readback buffers.
func (p *Profiler) Free() {
	for _, s := range p.slots {
		s.readback.Free()
		s.pool.Free()
	}
	p.slots = nil
}
