package cgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// MaxRenderTargets is the number of color targets a pipeline can write.
const MaxRenderTargets = 8

// RasterizerState configures rasterization. A nil state culls back faces,
// fills solid and treats counter-clockwise faces as front.
type RasterizerState struct {
	CullMode             gputypes.CullMode
	FrontFace            gputypes.FrontFace
	FillMode             FillMode
	DepthBias            int32
	SlopeScaledDepthBias float32
	DepthClamp           bool
	Multisample          bool
	Scissor              bool
}

// DepthState configures depth and stencil tests. A nil state disables
// everything.
type DepthState struct {
	DepthTest        bool
	DepthWrite       bool
	DepthFunc        gputypes.CompareFunction
	StencilTest      bool
	StencilReadMask  uint8
	StencilWriteMask uint8
	StencilFront     gputypes.StencilFaceState
	StencilBack      gputypes.StencilFaceState
}

// BlendState configures color blending per target. Slot 0 applies to every
// target unless IndependentBlend is set. A target blends when its factors
// differ from One/Zero. Zero-valued factors and operations take the
// replace defaults.
type BlendState struct {
	SrcFactors       [MaxRenderTargets]gputypes.BlendFactor
	DstFactors       [MaxRenderTargets]gputypes.BlendFactor
	SrcAlphaFactors  [MaxRenderTargets]gputypes.BlendFactor
	DstAlphaFactors  [MaxRenderTargets]gputypes.BlendFactor
	BlendModes       [MaxRenderTargets]gputypes.BlendOperation
	BlendAlphaModes  [MaxRenderTargets]gputypes.BlendOperation
	Masks            [MaxRenderTargets]gputypes.ColorWriteMask
	AlphaToCoverage  bool
	IndependentBlend bool
}

// VertexAttributeDescriptor is one vertex input. ArraySize > 1 expands into
// consecutive locations, each Format.Size() bytes apart.
type VertexAttributeDescriptor struct {
	Name      string
	Format    gputypes.VertexFormat
	Binding   uint32
	Location  uint32
	Offset    uint32
	ArraySize uint32
	Rate      gputypes.VertexStepMode
}

// VertexLayout is the vertex input of a render pipeline. A binding's stride
// is the end of its furthest attribute unless Strides names it.
type VertexLayout struct {
	Attributes []VertexAttributeDescriptor
	Strides    map[uint32]uint32
}

// RenderPipelineDescriptor describes a graphics pipeline. The target is a
// RenderPass and Subpass, or ColorFormats and DepthFormat for dynamic
// rendering.
type RenderPipelineDescriptor struct {
	Name          string
	RootSignature *RootSignature
	Vertex        *PipelineShader
	TessControl   *PipelineShader
	TessEval      *PipelineShader
	Geometry      *PipelineShader
	Fragment      *PipelineShader
	VertexLayout  *VertexLayout
	Blend         *BlendState
	Depth         *DepthState
	Rasterizer    *RasterizerState
	SampleCount   uint32
	ColorFormats  []gputypes.TextureFormat
	DepthFormat   gputypes.TextureFormat
	RenderPass    *RenderPass
	Subpass       uint32
	Topology      gputypes.PrimitiveTopology
	DynamicStates DynamicState
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Name          string
	RootSignature *RootSignature
	Compute       PipelineShader
}

// requiredDynamicStates is always dynamic: viewport and scissor are set per
// pass.
const requiredDynamicStates = DynamicStateViewport | DynamicStateScissor

func defaultRasterizer() RasterizerState {
	return RasterizerState{CullMode: gputypes.CullModeBack, FrontFace: gputypes.FrontFaceCCW, FillMode: FillSolid}
}

func factorOr(f, def gputypes.BlendFactor) gputypes.BlendFactor {
	if f == 0 {
		return def
	}
	return f
}

func opOr(op gputypes.BlendOperation) gputypes.BlendOperation {
	if op == 0 {
		return gputypes.BlendOperationAdd
	}
	return op
}

// resolveBlends expands a blend state to one ColorBlend per target.
func resolveBlends(b *BlendState, targets int, independent bool) []ColorBlend {
	out := make([]ColorBlend, targets)
	for i := range out {
		if b == nil {
			out[i] = ColorBlend{
				SrcColor: gputypes.BlendFactorOne, DstColor: gputypes.BlendFactorZero, ColorOp: gputypes.BlendOperationAdd,
				SrcAlpha: gputypes.BlendFactorOne, DstAlpha: gputypes.BlendFactorZero, AlphaOp: gputypes.BlendOperationAdd,
				WriteMask: gputypes.ColorWriteMaskAll,
			}
			continue
		}
		s := 0
		if independent && b.IndependentBlend {
			s = i
		}
		cb := ColorBlend{
			SrcColor:  factorOr(b.SrcFactors[s], gputypes.BlendFactorOne),
			DstColor:  factorOr(b.DstFactors[s], gputypes.BlendFactorZero),
			ColorOp:   opOr(b.BlendModes[s]),
			SrcAlpha:  factorOr(b.SrcAlphaFactors[s], gputypes.BlendFactorOne),
			DstAlpha:  factorOr(b.DstAlphaFactors[s], gputypes.BlendFactorZero),
			AlphaOp:   opOr(b.BlendAlphaModes[s]),
			WriteMask: b.Masks[s],
		}
		if cb.WriteMask == gputypes.ColorWriteMaskNone {
			cb.WriteMask = gputypes.ColorWriteMaskAll
		}
		cb.Enable = cb.SrcColor != gputypes.BlendFactorOne || cb.DstColor != gputypes.BlendFactorZero ||
			cb.SrcAlpha != gputypes.BlendFactorOne || cb.DstAlpha != gputypes.BlendFactorZero
		out[i] = cb
	}
	return out
}

// resolveVertexLayout expands array attributes and derives binding strides.
func resolveVertexLayout(l *VertexLayout) ([]VertexBinding, []VertexAttribute) {
	if l == nil {
		return nil, nil
	}
	var attrs []VertexAttribute
	var binds []VertexBinding
	ends := map[uint32]uint32{}
	for _, a := range l.Attributes {
		size := uint32(a.Format.Size())
		for e := range max(a.ArraySize, 1) {
			va := VertexAttribute{
				Location: a.Location + e,
				Binding:  a.Binding,
				Format:   a.Format,
				Offset:   a.Offset + e*size,
			}
			attrs = append(attrs, va)
			ends[a.Binding] = max(ends[a.Binding], va.Offset+size)
		}
		if !hasBinding(binds, a.Binding) {
			rate := a.Rate
			if rate == gputypes.VertexStepModeUndefined {
				rate = gputypes.VertexStepModeVertex
			}
			binds = append(binds, VertexBinding{Binding: a.Binding, StepMode: rate})
		}
	}
	for i := range binds {
		binds[i].Stride = ends[binds[i].Binding]
		if s, ok := l.Strides[binds[i].Binding]; ok {
			binds[i].Stride = s
		}
	}
	return binds, attrs
}

func hasBinding(bs []VertexBinding, b uint32) bool {
	for _, x := range bs {
		if x.Binding == b {
			return true
		}
	}
	return false
}

// resolveDynamicStates validates the requested states against the adapter.
func resolveDynamicStates(requested, supported DynamicState) (DynamicState, error) {
	if extra := requested &^ supported; extra != 0 {
		return 0, &UnsupportedDynamicStateError{Requested: requested, Supported: supported}
	}
	return (requested | requiredDynamicStates) & (supported | requiredDynamicStates), nil
}

// resolveRenderPipeline fills every default of desc for an adapter.
func resolveRenderPipeline(detail *AdapterDetail, desc *RenderPipelineDescriptor) (*NativeRenderPipelineDescriptor, error) {
	if desc.RootSignature == nil || desc.Vertex == nil {
		return nil, fmt.Errorf("pipeline %q needs a root signature and a vertex stage", desc.Name)
	}
	dyn, err := resolveDynamicStates(desc.DynamicStates, detail.DynamicStates)
	if err != nil {
		return nil, err
	}
	nd := &NativeRenderPipelineDescriptor{
		Name:          desc.Name,
		Layout:        desc.RootSignature.PipelineLayout(),
		Topology:      desc.Topology,
		SampleCount:   max(desc.SampleCount, 1),
		ColorFormats:  desc.ColorFormats,
		DepthFormat:   desc.DepthFormat,
		Subpass:       desc.Subpass,
		DynamicStates: dyn,
		Rasterizer:    defaultRasterizer(),
	}
	for _, s := range []*PipelineShader{desc.Vertex, desc.TessControl, desc.TessEval, desc.Geometry, desc.Fragment} {
		if s != nil {
			nd.Stages = append(nd.Stages, s.native())
		}
	}
	if desc.RenderPass != nil {
		nd.RenderPass = desc.RenderPass.native
		if len(nd.ColorFormats) == 0 {
			nd.ColorFormats = desc.RenderPass.colorFormats()
		}
		if nd.DepthFormat == gputypes.TextureFormatUndefined {
			nd.DepthFormat = desc.RenderPass.depthFormat()
		}
	}
	nd.VertexBindings, nd.Attributes = resolveVertexLayout(desc.VertexLayout)
	if desc.Rasterizer != nil {
		nd.Rasterizer = *desc.Rasterizer
	}
	if desc.Depth != nil {
		nd.Depth = *desc.Depth
		if nd.Depth.DepthFunc == 0 {
			nd.Depth.DepthFunc = gputypes.CompareFunctionLessEqual
		}
	}
	nd.Blends = resolveBlends(desc.Blend, len(nd.ColorFormats), detail.SupportsIndependentBlends)
	if desc.Blend != nil {
		nd.AlphaToCoverage = desc.Blend.AlphaToCoverage
	}
	return nd, nil
}

// RenderPipeline is a graphics pipeline bound to one root signature.
type RenderPipeline struct {
	device *Device
	rs     *RootSignature
	native NativePipeline
}

// CreateRenderPipeline builds a graphics pipeline.
func (d *Device) CreateRenderPipeline(desc *RenderPipelineDescriptor) (*RenderPipeline, error) {
	nd, err := resolveRenderPipeline(&d.adapter.detail, desc)
	if err != nil {
		var dse *UnsupportedDynamicStateError
		if errors.As(err, &dse) {
			return nil, dse
		}
		return nil, creationFailed("CreateRenderPipeline", err)
	}
	np, err := d.native.CreateRenderPipeline(nd)
	if err != nil {
		return nil, creationFailed("CreateRenderPipeline", logNative(d.log, "CreateRenderPipeline", err))
	}
	d.SetName(np, desc.Name)
	d.log.Debug("cgpu: render pipeline created", "name", desc.Name, "stages", len(nd.Stages))
	return &RenderPipeline{device: d, rs: desc.RootSignature, native: np}, nil
}

// RootSignature returns the pipeline's root signature.
func (p *RenderPipeline) RootSignature() *RootSignature { return p.rs }

// Native returns the backend pipeline.
func (p *RenderPipeline) Native() NativePipeline { return p.native }

// Free destroys the pipeline.
func (p *RenderPipeline) Free() {
	if p.native != nil {
		p.native.Destroy()
		p.native = nil
	}
}

// ComputePipeline is a compute pipeline bound to one root signature.
type ComputePipeline struct {
	device *Device
	rs     *RootSignature
	native NativePipeline
}

// CreateComputePipeline builds a compute pipeline.
func (d *Device) CreateComputePipeline(desc *ComputePipelineDescriptor) (*ComputePipeline, error) {
	if desc.RootSignature == nil || desc.Compute.Library == nil {
		return nil, creationFailed("CreateComputePipeline", fmt.Errorf("pipeline %q needs a root signature and a compute stage", desc.Name))
	}
	np, err := d.native.CreateComputePipeline(&NativeComputePipelineDescriptor{
		Name:   desc.Name,
		Layout: desc.RootSignature.PipelineLayout(),
		Stage:  desc.Compute.native(),
	})
	if err != nil {
		return nil, creationFailed("CreateComputePipeline", logNative(d.log, "CreateComputePipeline", err))
	}
	d.SetName(np, desc.Name)
	return &ComputePipeline{device: d, rs: desc.RootSignature, native: np}, nil
}

// RootSignature returns the pipeline's root signature.
func (p *ComputePipeline) RootSignature() *RootSignature { return p.rs }

// Native returns the backend pipeline.
func (p *ComputePipeline) Native() NativePipeline { return p.native }

// Free destroys the pipeline.
func (p *ComputePipeline) Free() {
	if p.native != nil {
		p.native.Destroy()
		p.native = nil
	}
}
