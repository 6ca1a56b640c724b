package cgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestResolveBlendsDefaults(t *testing.T) {
	got := resolveBlends(nil, 2, true)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for i, cb := range got {
		if cb.Enable {
			t.Errorf("target %d: blending enabled without a blend state", i)
		}
		if cb.WriteMask != gputypes.ColorWriteMaskAll {
			t.Errorf("target %d: WriteMask = %v, want All", i, cb.WriteMask)
		}
	}
}

func TestResolveBlendsSlotZeroApplies(t *testing.T) {
	b := &BlendState{}
	b.SrcFactors[0] = gputypes.BlendFactorSrcAlpha
	b.DstFactors[0] = gputypes.BlendFactorOneMinusSrcAlpha
	b.Masks[0] = gputypes.ColorWriteMaskRed

	got := resolveBlends(b, 3, true)
	for i, cb := range got {
		if !cb.Enable || cb.SrcColor != gputypes.BlendFactorSrcAlpha || cb.DstColor != gputypes.BlendFactorOneMinusSrcAlpha {
			t.Errorf("target %d = %+v, want slot 0 alpha blending", i, cb)
		}
		if cb.WriteMask != gputypes.ColorWriteMaskRed {
			t.Errorf("target %d WriteMask = %v", i, cb.WriteMask)
		}
		if cb.ColorOp != gputypes.BlendOperationAdd || cb.SrcAlpha != gputypes.BlendFactorOne {
			t.Errorf("target %d defaults not applied: %+v", i, cb)
		}
	}
}

func TestResolveBlendsIndependent(t *testing.T) {
	b := &BlendState{IndependentBlend: true}
	b.SrcFactors[1] = gputypes.BlendFactorSrcAlpha
	b.DstFactors[1] = gputypes.BlendFactorOneMinusSrcAlpha

	got := resolveBlends(b, 2, true)
	if got[0].Enable || !got[1].Enable {
		t.Errorf("independent blend = %v/%v, want false/true", got[0].Enable, got[1].Enable)
	}
	unsupported := resolveBlends(b, 2, false)
	if unsupported[0].Enable || unsupported[1].Enable {
		t.Errorf("adapter without independent blending must use slot 0 for every target")
	}
}

func TestResolveVertexLayout(t *testing.T) {
	binds, attrs := resolveVertexLayout(&VertexLayout{
		Attributes: []VertexAttributeDescriptor{
			{Name: "pos", Format: gputypes.VertexFormatFloat32x2, Binding: 0, Location: 0, Offset: 0},
			{Name: "uv", Format: gputypes.VertexFormatFloat32x2, Binding: 0, Location: 1, Offset: 8},
			{Name: "color", Format: gputypes.VertexFormatUnorm8x4, Binding: 0, Location: 2, Offset: 16},
			{Name: "model", Format: gputypes.VertexFormatFloat32x4, Binding: 1, Location: 3, ArraySize: 4,
				Rate: gputypes.VertexStepModeInstance},
		},
	})
	if len(binds) != 2 {
		t.Fatalf("bindings = %+v", binds)
	}
	if binds[0].Stride != 20 || binds[0].StepMode != gputypes.VertexStepModeVertex {
		t.Errorf("binding 0 = %+v, want stride 20 per vertex", binds[0])
	}
	if binds[1].Stride != 64 || binds[1].StepMode != gputypes.VertexStepModeInstance {
		t.Errorf("binding 1 = %+v, want stride 64 per instance", binds[1])
	}
	if len(attrs) != 7 {
		t.Fatalf("attributes = %d, want 7", len(attrs))
	}
	for e := range 4 {
		a := attrs[3+e]
		if a.Location != uint32(3+e) || a.Offset != uint32(16*e) {
			t.Errorf("matrix column %d = location %d offset %d", e, a.Location, a.Offset)
		}
	}
}

func TestResolveVertexLayoutStrideOverride(t *testing.T) {
	binds, _ := resolveVertexLayout(&VertexLayout{
		Attributes: []VertexAttributeDescriptor{{Format: gputypes.VertexFormatFloat32x3}},
		Strides:    map[uint32]uint32{0: 32},
	})
	if binds[0].Stride != 32 {
		t.Errorf("Stride = %d, want 32", binds[0].Stride)
	}
	if b, a := resolveVertexLayout(nil); b != nil || a != nil {
		t.Error("nil layout produced vertex input")
	}
}

func TestResolveDynamicStates(t *testing.T) {
	got, err := resolveDynamicStates(0, DynamicStateCore)
	if err != nil {
		t.Fatal(err)
	}
	if got != DynamicStateViewport|DynamicStateScissor {
		t.Errorf("default dynamic states = %s", got)
	}

	got, err = resolveDynamicStates(DynamicStateStencilReference, DynamicStateCore)
	if err != nil || got&DynamicStateStencilReference == 0 {
		t.Errorf("supported request = %s, %v", got, err)
	}

	_, err = resolveDynamicStates(DynamicStateCullMode, DynamicStateCore)
	var dse *UnsupportedDynamicStateError
	if !errors.As(err, &dse) {
		t.Fatalf("unsupported request error = %v", err)
	}
	if dse.Requested&^dse.Supported != DynamicStateCullMode {
		t.Errorf("error reports %s", dse.Requested&^dse.Supported)
	}
}

func TestBytesPerPixel(t *testing.T) {
	tests := []struct {
		format gputypes.TextureFormat
		want   uint32
	}{
		{gputypes.TextureFormatR8Unorm, 1},
		{gputypes.TextureFormatRG8Unorm, 2},
		{gputypes.TextureFormatRGBA8Unorm, 4},
		{gputypes.TextureFormatBGRA8Unorm, 4},
		{gputypes.TextureFormatRGBA16Float, 8},
		{gputypes.TextureFormatRGBA32Float, 16},
		{gputypes.TextureFormatDepth32Float, 4},
		{gputypes.TextureFormatUndefined, 0},
	}
	for _, tt := range tests {
		if got := BytesPerPixel(tt.format); got != tt.want {
			t.Errorf("BytesPerPixel(%s) = %d, want %d", tt.format, got, tt.want)
		}
	}
}
