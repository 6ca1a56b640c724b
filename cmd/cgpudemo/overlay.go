package main

import (
	"golang.org/x/image/math/f32"

	"github.com/gogpu/cgpu/imgui"
	"github.com/gogpu/cgpu/profiler"
)

const (
	panelX      = 12
	panelY      = 12
	panelWidth  = 260
	barHeight   = 12
	barGap      = 4
	budgetMicro = 16667 // one 60 Hz frame fills a bar
)

var barColors = []uint32{0xff3fa9f5, 0xff5fd35f, 0xff3f6ff5, 0xffd35fd3}

// overlay draws the last GPU timings as horizontal bars.
func (a *app) overlay() *imgui.DrawData {
	ext := a.sc.Extent()
	list := &imgui.DrawList{}
	samples := timingSamples(a.timings)
	height := float32(barGap + len(samples)*(barHeight+barGap))
	rect(list, panelX, panelY, panelX+panelWidth, panelY+height, 0xc0202020)
	for i, s := range samples {
		y := panelY + barGap + float32(i*(barHeight+barGap))
		w := float32(min(s.Micros/budgetMicro, 1)) * (panelWidth - 2*barGap)
		rect(list, panelX+barGap, y, panelX+barGap+max(w, 1), y+barHeight, barColors[i%len(barColors)])
	}
	list.Commands = []imgui.DrawCmd{{
		ClipRect:  f32.Vec4{0, 0, float32(ext.Width), float32(ext.Height)},
		ElemCount: uint32(len(list.Indices)),
	}}
	return &imgui.DrawData{
		DisplaySize: f32.Vec2{float32(ext.Width), float32(ext.Height)},
		Lists:       []*imgui.DrawList{list},
	}
}

func timingSamples(r *profiler.Result) []profiler.Sample {
	if r == nil {
		return nil
	}
	return r.Samples
}

func rect(l *imgui.DrawList, x0, y0, x1, y1 float32, col uint32) {
	base := uint16(len(l.Vertices))
	l.Vertices = append(l.Vertices,
		imgui.DrawVert{Pos: f32.Vec2{x0, y0}, Col: col},
		imgui.DrawVert{Pos: f32.Vec2{x1, y0}, Col: col},
		imgui.DrawVert{Pos: f32.Vec2{x1, y1}, Col: col},
		imgui.DrawVert{Pos: f32.Vec2{x0, y1}, Col: col},
	)
	l.Indices = append(l.Indices, base, base+1, base+2, base, base+2, base+3)
}
