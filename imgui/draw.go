// Package imgui renders Dear ImGui style draw data on a cgpu device.
//
// The renderer consumes the command lists an immediate mode UI produces each
// frame: vertices and 16-bit indices per list, and draw commands that each
// cover a range of indices, a clip rectangle and a texture. It owns the font
// atlas texture, a pipeline that blends over the current render target and
// one pair of vertex/index buffers per frame in flight, grown on demand.
//
//	r, _ := imgui.New(&imgui.RendererDescriptor{
//		Device:         dev,
//		Queue:          q,
//		RenderPass:     pass,
//		FramesInFlight: ring.Len(),
//		Font:           atlas,
//	})
//	// inside the frame's render pass
//	r.Render(enc, f.Index, drawData)
package imgui

import (
	"encoding/binary"
	"math"

	"golang.org/x/image/math/f32"
)

// VertexSize is the size of one encoded DrawVert.
const VertexSize = 20

// TextureID names a texture bound for a draw command. Zero is the font
// atlas.
type TextureID uint64

// FontTexture is the ID of the font atlas.
const FontTexture TextureID = 0

// DrawVert is one UI vertex. Col is packed RGBA with red in the low byte.
type DrawVert struct {
	Pos f32.Vec2
	UV  f32.Vec2
	Col uint32
}

// DrawCmd draws ElemCount indices starting at IdxOffset, with vertex indices
// offset by VtxOffset, both relative to the owning list. ClipRect is
// (minX, minY, maxX, maxY) in display coordinates.
//
// A command with a Callback draws nothing; the callback is run in its place
// and, with ResetState, the renderer's state is bound again afterwards.
type DrawCmd struct {
	ClipRect   f32.Vec4
	Texture    TextureID
	VtxOffset  uint32
	IdxOffset  uint32
	ElemCount  uint32
	Callback   func(list *DrawList, cmd *DrawCmd)
	ResetState bool
}

// DrawList is the geometry of one window or layer.
type DrawList struct {
	Vertices []DrawVert
	Indices  []uint16
	Commands []DrawCmd
}

// DrawData is everything drawn in one frame. DisplayPos and DisplaySize
// are the visible area in display coordinates; FramebufferScale converts
// them to pixels and defaults to 1.
type DrawData struct {
	DisplayPos       f32.Vec2
	DisplaySize      f32.Vec2
	FramebufferScale f32.Vec2
	Lists            []*DrawList
}

// TotalVertices returns the vertex count over all lists.
func (d *DrawData) TotalVertices() int {
	n := 0
	for _, l := range d.Lists {
		n += len(l.Vertices)
	}
	return n
}

// TotalIndices returns the index count over all lists.
func (d *DrawData) TotalIndices() int {
	n := 0
	for _, l := range d.Lists {
		n += len(l.Indices)
	}
	return n
}

func (d *DrawData) scale() f32.Vec2 {
	s := d.FramebufferScale
	if s[0] == 0 {
		s[0] = 1
	}
	if s[1] == 0 {
		s[1] = 1
	}
	return s
}

// FramebufferSize returns the render target size in pixels.
func (d *DrawData) FramebufferSize() (width, height float32) {
	s := d.scale()
	return d.DisplaySize[0] * s[0], d.DisplaySize[1] * s[1]
}

// Projection returns the scale and translation that map display
// coordinates, y down, to clip space, y up: xy is the scale, zw the
// translation.
func (d *DrawData) Projection() f32.Vec4 {
	sx := 2 / d.DisplaySize[0]
	sy := -2 / d.DisplaySize[1]
	return f32.Vec4{sx, sy, -1 - d.DisplayPos[0]*sx, 1 - d.DisplayPos[1]*sy}
}

// Scissor projects a clip rectangle to framebuffer pixels and clamps it to
// the target. ok is false when nothing is left to draw.
func (d *DrawData) Scissor(clip f32.Vec4) (x, y, w, h uint32, ok bool) {
	s := d.scale()
	fw, fh := d.FramebufferSize()
	minX := max((clip[0]-d.DisplayPos[0])*s[0], 0)
	minY := max((clip[1]-d.DisplayPos[1])*s[1], 0)
	maxX := min((clip[2]-d.DisplayPos[0])*s[0], fw)
	maxY := min((clip[3]-d.DisplayPos[1])*s[1], fh)
	if maxX <= minX || maxY <= minY {
		return 0, 0, 0, 0, false
	}
	return uint32(minX), uint32(minY), uint32(maxX - minX), uint32(maxY - minY), true
}

func putVertices(dst []byte, vs []DrawVert) {
	for i, v := range vs {
		o := dst[i*VertexSize:]
		binary.LittleEndian.PutUint32(o[0:], math.Float32bits(v.Pos[0]))
		binary.LittleEndian.PutUint32(o[4:], math.Float32bits(v.Pos[1]))
		binary.LittleEndian.PutUint32(o[8:], math.Float32bits(v.UV[0]))
		binary.LittleEndian.PutUint32(o[12:], math.Float32bits(v.UV[1]))
		binary.LittleEndian.PutUint32(o[16:], v.Col)
	}
}

func putIndices(dst []byte, is []uint16) {
	for i, v := range is {
		binary.LittleEndian.PutUint16(dst[i*2:], v)
	}
}

func putVec4(v f32.Vec4) []byte {
	b := make([]byte, 16)
	for i, c := range v {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(c))
	}
	return b
}
