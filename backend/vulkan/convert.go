package vulkan

import (
	"fmt"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/gputypes"
	vk "github.com/goki/vulkan"
)

func vkBool(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// safeString terminates s for the C side.
func safeString(s string) string {
	if len(s) > 0 && s[len(s)-1] == 0 {
		return s
	}
	return s + "\x00"
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// selectNames returns the wanted names that are available, in wanted order
// and without duplicates, plus the ones that are missing.
func selectNames(available, wanted []string) (found, missing []string) {
	have := make(map[string]bool, len(available))
	for _, a := range available {
		have[a] = true
	}
	seen := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		if seen[w] {
			continue
		}
		seen[w] = true
		if have[w] {
			found = append(found, w)
		} else {
			missing = append(missing, w)
		}
	}
	return found, missing
}

var formatMap = map[gputypes.TextureFormat]vk.Format{
	gputypes.TextureFormatR8Unorm:              vk.FormatR8Unorm,
	gputypes.TextureFormatR8Snorm:              vk.FormatR8Snorm,
	gputypes.TextureFormatR8Uint:               vk.FormatR8Uint,
	gputypes.TextureFormatR8Sint:               vk.FormatR8Sint,
	gputypes.TextureFormatR16Uint:              vk.FormatR16Uint,
	gputypes.TextureFormatR16Sint:              vk.FormatR16Sint,
	gputypes.TextureFormatR16Float:             vk.FormatR16Sfloat,
	gputypes.TextureFormatRG8Unorm:             vk.FormatR8g8Unorm,
	gputypes.TextureFormatRG8Snorm:             vk.FormatR8g8Snorm,
	gputypes.TextureFormatRG8Uint:              vk.FormatR8g8Uint,
	gputypes.TextureFormatRG8Sint:              vk.FormatR8g8Sint,
	gputypes.TextureFormatR32Uint:              vk.FormatR32Uint,
	gputypes.TextureFormatR32Sint:              vk.FormatR32Sint,
	gputypes.TextureFormatR32Float:             vk.FormatR32Sfloat,
	gputypes.TextureFormatRG16Uint:             vk.FormatR16g16Uint,
	gputypes.TextureFormatRG16Sint:             vk.FormatR16g16Sint,
	gputypes.TextureFormatRG16Float:            vk.FormatR16g16Sfloat,
	gputypes.TextureFormatRGBA8Unorm:           vk.FormatR8g8b8a8Unorm,
	gputypes.TextureFormatRGBA8UnormSrgb:       vk.FormatR8g8b8a8Srgb,
	gputypes.TextureFormatRGBA8Snorm:           vk.FormatR8g8b8a8Snorm,
	gputypes.TextureFormatRGBA8Uint:            vk.FormatR8g8b8a8Uint,
	gputypes.TextureFormatRGBA8Sint:            vk.FormatR8g8b8a8Sint,
	gputypes.TextureFormatBGRA8Unorm:           vk.FormatB8g8r8a8Unorm,
	gputypes.TextureFormatBGRA8UnormSrgb:       vk.FormatB8g8r8a8Srgb,
	gputypes.TextureFormatRGB9E5Ufloat:         vk.FormatE5b9g9r9UfloatPack32,
	gputypes.TextureFormatRGB10A2Uint:          vk.FormatA2b10g10r10UintPack32,
	gputypes.TextureFormatRGB10A2Unorm:         vk.FormatA2b10g10r10UnormPack32,
	gputypes.TextureFormatRG11B10Ufloat:        vk.FormatB10g11r11UfloatPack32,
	gputypes.TextureFormatRG32Uint:             vk.FormatR32g32Uint,
	gputypes.TextureFormatRG32Sint:             vk.FormatR32g32Sint,
	gputypes.TextureFormatRG32Float:            vk.FormatR32g32Sfloat,
	gputypes.TextureFormatRGBA16Uint:           vk.FormatR16g16b16a16Uint,
	gputypes.TextureFormatRGBA16Sint:           vk.FormatR16g16b16a16Sint,
	gputypes.TextureFormatRGBA16Float:          vk.FormatR16g16b16a16Sfloat,
	gputypes.TextureFormatRGBA32Uint:           vk.FormatR32g32b32a32Uint,
	gputypes.TextureFormatRGBA32Sint:           vk.FormatR32g32b32a32Sint,
	gputypes.TextureFormatRGBA32Float:          vk.FormatR32g32b32a32Sfloat,
	gputypes.TextureFormatStencil8:             vk.FormatS8Uint,
	gputypes.TextureFormatDepth16Unorm:         vk.FormatD16Unorm,
	gputypes.TextureFormatDepth24Plus:          vk.FormatX8D24UnormPack32,
	gputypes.TextureFormatDepth24PlusStencil8:  vk.FormatD24UnormS8Uint,
	gputypes.TextureFormatDepth32Float:         vk.FormatD32Sfloat,
	gputypes.TextureFormatDepth32FloatStencil8: vk.FormatD32SfloatS8Uint,
	gputypes.TextureFormatBC1RGBAUnorm:         vk.FormatBc1RgbaUnormBlock,
	gputypes.TextureFormatBC1RGBAUnormSrgb:     vk.FormatBc1RgbaSrgbBlock,
	gputypes.TextureFormatBC2RGBAUnorm:         vk.FormatBc2UnormBlock,
	gputypes.TextureFormatBC2RGBAUnormSrgb:     vk.FormatBc2SrgbBlock,
	gputypes.TextureFormatBC3RGBAUnorm:         vk.FormatBc3UnormBlock,
	gputypes.TextureFormatBC3RGBAUnormSrgb:     vk.FormatBc3SrgbBlock,
	gputypes.TextureFormatBC4RUnorm:            vk.FormatBc4UnormBlock,
	gputypes.TextureFormatBC4RSnorm:            vk.FormatBc4SnormBlock,
	gputypes.TextureFormatBC5RGUnorm:           vk.FormatBc5UnormBlock,
	gputypes.TextureFormatBC5RGSnorm:           vk.FormatBc5SnormBlock,
	gputypes.TextureFormatBC6HRGBUfloat:        vk.FormatBc6hUfloatBlock,
	gputypes.TextureFormatBC6HRGBFloat:         vk.FormatBc6hSfloatBlock,
	gputypes.TextureFormatBC7RGBAUnorm:         vk.FormatBc7UnormBlock,
	gputypes.TextureFormatBC7RGBAUnormSrgb:     vk.FormatBc7SrgbBlock,
}

// textureFormat maps a format, returning FormatUndefined for formats the
// backend does not know.
func textureFormat(f gputypes.TextureFormat) vk.Format {
	if v, ok := formatMap[f]; ok {
		return v
	}
	return vk.FormatUndefined
}

// fromVkFormat is the inverse of textureFormat for surface formats.
func fromVkFormat(f vk.Format) gputypes.TextureFormat {
	for k, v := range formatMap {
		if v == f {
			return k
		}
	}
	return gputypes.TextureFormatUndefined
}

// bufferUsage derives the Vulkan usage of a buffer from its descriptor
// types. Every buffer is a transfer source and destination.
func bufferUsage(t cgpu.ResourceType) vk.BufferUsageFlags {
	u := vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit
	if t&cgpu.ResourceTypeUniformBuffer != 0 {
		u |= vk.BufferUsageUniformBufferBit
	}
	if t&(cgpu.ResourceTypeBuffer|cgpu.ResourceTypeRWBuffer) != 0 {
		u |= vk.BufferUsageStorageBufferBit
	}
	if t&cgpu.ResourceTypeTexelBuffer != 0 {
		u |= vk.BufferUsageUniformTexelBufferBit
	}
	if t&cgpu.ResourceTypeRWTexelBuffer != 0 {
		u |= vk.BufferUsageStorageTexelBufferBit
	}
	if t&cgpu.ResourceTypeVertexBuffer != 0 {
		u |= vk.BufferUsageVertexBufferBit
	}
	if t&cgpu.ResourceTypeIndexBuffer != 0 {
		u |= vk.BufferUsageIndexBufferBit
	}
	if t&cgpu.ResourceTypeIndirectBuffer != 0 {
		u |= vk.BufferUsageIndirectBufferBit
	}
	return vk.BufferUsageFlags(u)
}

// imageUsage derives the Vulkan usage of a texture from its descriptor
// types.
func imageUsage(t cgpu.ResourceType) vk.ImageUsageFlags {
	u := vk.ImageUsageTransferSrcBit | vk.ImageUsageTransferDstBit
	if t&cgpu.ResourceTypeTexture != 0 {
		u |= vk.ImageUsageSampledBit
	}
	if t&cgpu.ResourceTypeRWTexture != 0 {
		u |= vk.ImageUsageStorageBit
	}
	if t&cgpu.ResourceTypeRenderTarget != 0 {
		u |= vk.ImageUsageColorAttachmentBit
	}
	if t&cgpu.ResourceTypeDepthStencil != 0 {
		u |= vk.ImageUsageDepthStencilAttachmentBit
	}
	if t&cgpu.ResourceTypeInputAttach != 0 {
		u |= vk.ImageUsageInputAttachmentBit
	}
	return vk.ImageUsageFlags(u)
}

// surfaceUsage maps the WebGPU usage of swapchain images.
func surfaceUsage(u gputypes.TextureUsage) vk.ImageUsageFlags {
	var f vk.ImageUsageFlagBits
	if u&gputypes.TextureUsageRenderAttachment != 0 {
		f |= vk.ImageUsageColorAttachmentBit
	}
	if u&gputypes.TextureUsageCopyDst != 0 {
		f |= vk.ImageUsageTransferDstBit
	}
	if u&gputypes.TextureUsageCopySrc != 0 {
		f |= vk.ImageUsageTransferSrcBit
	}
	if u&gputypes.TextureUsageTextureBinding != 0 {
		f |= vk.ImageUsageSampledBit
	}
	if u&gputypes.TextureUsageStorageBinding != 0 {
		f |= vk.ImageUsageStorageBit
	}
	if f == 0 {
		f = vk.ImageUsageColorAttachmentBit
	}
	return vk.ImageUsageFlags(f)
}

func imageType(desc *cgpu.TextureDescriptor) vk.ImageType {
	switch {
	case desc.Depth > 1:
		return vk.ImageType3d
	case desc.Height <= 1 && desc.Width > 1 && desc.ArraySize <= 1:
		return vk.ImageType1d
	default:
		return vk.ImageType2d
	}
}

// viewType picks the view type for dim, deriving it from the texture shape
// when dim is undefined.
func viewType(dim gputypes.TextureViewDimension, typ vk.ImageType, cube bool, layers uint32) vk.ImageViewType {
	switch dim {
	case gputypes.TextureViewDimension1D:
		return vk.ImageViewType1d
	case gputypes.TextureViewDimension2D:
		return vk.ImageViewType2d
	case gputypes.TextureViewDimension2DArray:
		return vk.ImageViewType2dArray
	case gputypes.TextureViewDimensionCube:
		return vk.ImageViewTypeCube
	case gputypes.TextureViewDimensionCubeArray:
		return vk.ImageViewTypeCubeArray
	case gputypes.TextureViewDimension3D:
		return vk.ImageViewType3d
	}
	switch {
	case typ == vk.ImageType3d:
		return vk.ImageViewType3d
	case typ == vk.ImageType1d:
		return vk.ImageViewType1d
	case cube && layers > 6:
		return vk.ImageViewTypeCubeArray
	case cube:
		return vk.ImageViewTypeCube
	case layers > 1:
		return vk.ImageViewType2dArray
	default:
		return vk.ImageViewType2d
	}
}

// memoryProperties returns the memory properties a buffer requires and the
// ones it prefers on top.
func memoryProperties(usage cgpu.MemoryUsage, flags cgpu.BufferFlags) (required, preferred vk.MemoryPropertyFlagBits) {
	switch usage {
	case cgpu.MemoryUsageCPUOnly:
		required = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	case cgpu.MemoryUsageCPUToGPU:
		required = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
		preferred = vk.MemoryPropertyDeviceLocalBit
	case cgpu.MemoryUsageGPUToCPU:
		required = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
		preferred = vk.MemoryPropertyHostCachedBit
	default:
		preferred = vk.MemoryPropertyDeviceLocalBit
	}
	if flags&(cgpu.BufferFlagHostVisible|cgpu.BufferFlagPersistentMap) != 0 {
		required |= vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	return required, preferred
}

// memoryTypeIndex picks the first type allowed by bits that has required
// and preferred properties, falling back to required alone.
func memoryTypeIndex(types []vk.MemoryPropertyFlagBits, bits uint32, required, preferred vk.MemoryPropertyFlagBits) (uint32, bool) {
	for _, want := range []vk.MemoryPropertyFlagBits{required | preferred, required} {
		for i, props := range types {
			if bits&(1<<uint(i)) != 0 && props&want == want {
				return uint32(i), true
			}
		}
	}
	return 0, false
}

// descriptorType maps a binding type. Types that never reach a descriptor
// set return ok == false.
func descriptorType(t cgpu.ResourceType) (vk.DescriptorType, bool) {
	switch t {
	case cgpu.ResourceTypeSampler:
		return vk.DescriptorTypeSampler, true
	case cgpu.ResourceTypeTexture, cgpu.ResourceTypeTextureCube:
		return vk.DescriptorTypeSampledImage, true
	case cgpu.ResourceTypeRWTexture:
		return vk.DescriptorTypeStorageImage, true
	case cgpu.ResourceTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer, true
	case cgpu.ResourceTypeBuffer, cgpu.ResourceTypeBufferRaw,
		cgpu.ResourceTypeRWBuffer, cgpu.ResourceTypeRWBufferRaw:
		return vk.DescriptorTypeStorageBuffer, true
	case cgpu.ResourceTypeInputAttach:
		return vk.DescriptorTypeInputAttachment, true
	default:
		return 0, false
	}
}

// poolSizes sums the descriptors of bindings for sets sets.
func poolSizes(bindings []cgpu.SetLayoutBinding, sets uint32) []vk.DescriptorPoolSize {
	var out []vk.DescriptorPoolSize
	index := make(map[vk.DescriptorType]int)
	for _, b := range bindings {
		dt, ok := descriptorType(b.Type)
		if !ok {
			continue
		}
		n := max(b.Count, 1) * sets
		if i, ok := index[dt]; ok {
			out[i].DescriptorCount += n
			continue
		}
		index[dt] = len(out)
		out = append(out, vk.DescriptorPoolSize{Type: dt, DescriptorCount: n})
	}
	return out
}

func shaderStages(s cgpu.ShaderStage) vk.ShaderStageFlags {
	return vk.ShaderStageFlags(s)
}

func shaderStageBit(s cgpu.ShaderStage) vk.ShaderStageFlagBits {
	return vk.ShaderStageFlagBits(s)
}

func filter(f gputypes.FilterMode) vk.Filter {
	if f == gputypes.FilterModeLinear {
		return vk.FilterLinear
	}
	return vk.FilterNearest
}

func mipmapMode(m gputypes.MipmapFilterMode) vk.SamplerMipmapMode {
	if m == gputypes.MipmapFilterModeLinear {
		return vk.SamplerMipmapModeLinear
	}
	return vk.SamplerMipmapModeNearest
}

func addressMode(m gputypes.AddressMode) vk.SamplerAddressMode {
	switch m {
	case gputypes.AddressModeRepeat:
		return vk.SamplerAddressModeRepeat
	case gputypes.AddressModeMirrorRepeat:
		return vk.SamplerAddressModeMirroredRepeat
	default:
		return vk.SamplerAddressModeClampToEdge
	}
}

func compareOp(f gputypes.CompareFunction) vk.CompareOp {
	switch f {
	case gputypes.CompareFunctionNever:
		return vk.CompareOpNever
	case gputypes.CompareFunctionLess:
		return vk.CompareOpLess
	case gputypes.CompareFunctionEqual:
		return vk.CompareOpEqual
	case gputypes.CompareFunctionLessEqual:
		return vk.CompareOpLessOrEqual
	case gputypes.CompareFunctionGreater:
		return vk.CompareOpGreater
	case gputypes.CompareFunctionNotEqual:
		return vk.CompareOpNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	default:
		return vk.CompareOpAlways
	}
}

func stencilOp(op gputypes.StencilOperation) vk.StencilOp {
	switch op {
	case gputypes.StencilOperationZero:
		return vk.StencilOpZero
	case gputypes.StencilOperationReplace:
		return vk.StencilOpReplace
	case gputypes.StencilOperationInvert:
		return vk.StencilOpInvert
	case gputypes.StencilOperationIncrementClamp:
		return vk.StencilOpIncrementAndClamp
	case gputypes.StencilOperationDecrementClamp:
		return vk.StencilOpDecrementAndClamp
	case gputypes.StencilOperationIncrementWrap:
		return vk.StencilOpIncrementAndWrap
	case gputypes.StencilOperationDecrementWrap:
		return vk.StencilOpDecrementAndWrap
	default:
		return vk.StencilOpKeep
	}
}

func stencilFace(s gputypes.StencilFaceState, readMask, writeMask uint8) vk.StencilOpState {
	return vk.StencilOpState{
		FailOp:      stencilOp(s.FailOp),
		PassOp:      stencilOp(s.PassOp),
		DepthFailOp: stencilOp(s.DepthFailOp),
		CompareOp:   compareOp(s.Compare),
		CompareMask: uint32(readMask),
		WriteMask:   uint32(writeMask),
	}
}

func blendFactor(f gputypes.BlendFactor) vk.BlendFactor {
	switch f {
	case gputypes.BlendFactorZero:
		return vk.BlendFactorZero
	case gputypes.BlendFactorSrc:
		return vk.BlendFactorSrcColor
	case gputypes.BlendFactorOneMinusSrc:
		return vk.BlendFactorOneMinusSrcColor
	case gputypes.BlendFactorSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case gputypes.BlendFactorDst:
		return vk.BlendFactorDstColor
	case gputypes.BlendFactorOneMinusDst:
		return vk.BlendFactorOneMinusDstColor
	case gputypes.BlendFactorDstAlpha:
		return vk.BlendFactorDstAlpha
	case gputypes.BlendFactorOneMinusDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	case gputypes.BlendFactorSrcAlphaSaturated:
		return vk.BlendFactorSrcAlphaSaturate
	case gputypes.BlendFactorConstant:
		return vk.BlendFactorConstantColor
	case gputypes.BlendFactorOneMinusConstant:
		return vk.BlendFactorOneMinusConstantColor
	default:
		return vk.BlendFactorOne
	}
}

func blendOp(op gputypes.BlendOperation) vk.BlendOp {
	switch op {
	case gputypes.BlendOperationSubtract:
		return vk.BlendOpSubtract
	case gputypes.BlendOperationReverseSubtract:
		return vk.BlendOpReverseSubtract
	case gputypes.BlendOperationMin:
		return vk.BlendOpMin
	case gputypes.BlendOperationMax:
		return vk.BlendOpMax
	default:
		return vk.BlendOpAdd
	}
}

func colorWriteMask(m gputypes.ColorWriteMask) vk.ColorComponentFlags {
	var f vk.ColorComponentFlagBits
	if m&gputypes.ColorWriteMaskRed != 0 {
		f |= vk.ColorComponentRBit
	}
	if m&gputypes.ColorWriteMaskGreen != 0 {
		f |= vk.ColorComponentGBit
	}
	if m&gputypes.ColorWriteMaskBlue != 0 {
		f |= vk.ColorComponentBBit
	}
	if m&gputypes.ColorWriteMaskAlpha != 0 {
		f |= vk.ColorComponentABit
	}
	return vk.ColorComponentFlags(f)
}

func blendAttachment(b cgpu.ColorBlend) vk.PipelineColorBlendAttachmentState {
	return vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vkBool(b.Enable),
		SrcColorBlendFactor: blendFactor(b.SrcColor),
		DstColorBlendFactor: blendFactor(b.DstColor),
		ColorBlendOp:        blendOp(b.ColorOp),
		SrcAlphaBlendFactor: blendFactor(b.SrcAlpha),
		DstAlphaBlendFactor: blendFactor(b.DstAlpha),
		AlphaBlendOp:        blendOp(b.AlphaOp),
		ColorWriteMask:      colorWriteMask(b.WriteMask),
	}
}

func topology(t gputypes.PrimitiveTopology) vk.PrimitiveTopology {
	switch t {
	case gputypes.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	case gputypes.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case gputypes.PrimitiveTopologyLineStrip:
		return vk.PrimitiveTopologyLineStrip
	case gputypes.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func cullMode(m gputypes.CullMode) vk.CullModeFlags {
	switch m {
	case gputypes.CullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case gputypes.CullModeBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	default:
		return vk.CullModeFlags(vk.CullModeNone)
	}
}

func frontFace(f gputypes.FrontFace) vk.FrontFace {
	if f == gputypes.FrontFaceCW {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func polygonMode(m cgpu.FillMode) vk.PolygonMode {
	if m == cgpu.FillWireframe {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

func inputRate(m gputypes.VertexStepMode) vk.VertexInputRate {
	if m == gputypes.VertexStepModeInstance {
		return vk.VertexInputRateInstance
	}
	return vk.VertexInputRateVertex
}

var vertexFormatMap = map[gputypes.VertexFormat]vk.Format{
	gputypes.VertexFormatUint8x2:      vk.FormatR8g8Uint,
	gputypes.VertexFormatUint8x4:      vk.FormatR8g8b8a8Uint,
	gputypes.VertexFormatSint8x2:      vk.FormatR8g8Sint,
	gputypes.VertexFormatSint8x4:      vk.FormatR8g8b8a8Sint,
	gputypes.VertexFormatUnorm8x2:     vk.FormatR8g8Unorm,
	gputypes.VertexFormatUnorm8x4:     vk.FormatR8g8b8a8Unorm,
	gputypes.VertexFormatSnorm8x2:     vk.FormatR8g8Snorm,
	gputypes.VertexFormatSnorm8x4:     vk.FormatR8g8b8a8Snorm,
	gputypes.VertexFormatUint16x2:     vk.FormatR16g16Uint,
	gputypes.VertexFormatUint16x4:     vk.FormatR16g16b16a16Uint,
	gputypes.VertexFormatSint16x2:     vk.FormatR16g16Sint,
	gputypes.VertexFormatSint16x4:     vk.FormatR16g16b16a16Sint,
	gputypes.VertexFormatUnorm16x2:    vk.FormatR16g16Unorm,
	gputypes.VertexFormatUnorm16x4:    vk.FormatR16g16b16a16Unorm,
	gputypes.VertexFormatSnorm16x2:    vk.FormatR16g16Snorm,
	gputypes.VertexFormatSnorm16x4:    vk.FormatR16g16b16a16Snorm,
	gputypes.VertexFormatFloat16x2:    vk.FormatR16g16Sfloat,
	gputypes.VertexFormatFloat16x4:    vk.FormatR16g16b16a16Sfloat,
	gputypes.VertexFormatFloat32:      vk.FormatR32Sfloat,
	gputypes.VertexFormatFloat32x2:    vk.FormatR32g32Sfloat,
	gputypes.VertexFormatFloat32x3:    vk.FormatR32g32b32Sfloat,
	gputypes.VertexFormatFloat32x4:    vk.FormatR32g32b32a32Sfloat,
	gputypes.VertexFormatUint32:       vk.FormatR32Uint,
	gputypes.VertexFormatUint32x2:     vk.FormatR32g32Uint,
	gputypes.VertexFormatUint32x3:     vk.FormatR32g32b32Uint,
	gputypes.VertexFormatUint32x4:     vk.FormatR32g32b32a32Uint,
	gputypes.VertexFormatSint32:       vk.FormatR32Sint,
	gputypes.VertexFormatSint32x2:     vk.FormatR32g32Sint,
	gputypes.VertexFormatSint32x3:     vk.FormatR32g32b32Sint,
	gputypes.VertexFormatSint32x4:     vk.FormatR32g32b32a32Sint,
	gputypes.VertexFormatUnorm1010102: vk.FormatA2b10g10r10UnormPack32,
}

func vertexFormat(f gputypes.VertexFormat) (vk.Format, error) {
	v, ok := vertexFormatMap[f]
	if !ok {
		return vk.FormatUndefined, fmt.Errorf("vulkan: vertex format %d: %w", f, cgpu.ErrUnsupported)
	}
	return v, nil
}

func indexType(f gputypes.IndexFormat) vk.IndexType {
	if f == gputypes.IndexFormatUint32 {
		return vk.IndexTypeUint32
	}
	return vk.IndexTypeUint16
}

func loadOp(op gputypes.LoadOp) vk.AttachmentLoadOp {
	switch op {
	case gputypes.LoadOpLoad:
		return vk.AttachmentLoadOpLoad
	case gputypes.LoadOpClear:
		return vk.AttachmentLoadOpClear
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func storeOp(op gputypes.StoreOp) vk.AttachmentStoreOp {
	if op == gputypes.StoreOpStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

// initialLayout is the layout an attachment enters a render pass in. Only
// loaded attachments need their contents.
func initialLayout(op gputypes.LoadOp, attached vk.ImageLayout) vk.ImageLayout {
	if op == gputypes.LoadOpLoad {
		return attached
	}
	return vk.ImageLayoutUndefined
}

// dynamicStates lists the Vulkan 1.0 dynamic states in d. Viewport and
// scissor are always dynamic.
func dynamicStates(d cgpu.DynamicState) []vk.DynamicState {
	d |= cgpu.DynamicStateViewport | cgpu.DynamicStateScissor
	var out []vk.DynamicState
	for i := vk.DynamicState(0); i <= vk.DynamicStateStencilReference; i++ {
		if d&(1<<uint(i)) != 0 {
			out = append(out, i)
		}
	}
	return out
}

func presentMode(m gputypes.PresentMode) vk.PresentMode {
	switch m {
	case gputypes.PresentModeImmediate:
		return vk.PresentModeImmediate
	case gputypes.PresentModeMailbox:
		return vk.PresentModeMailbox
	case gputypes.PresentModeFifoRelaxed:
		return vk.PresentModeFifoRelaxed
	default:
		return vk.PresentModeFifo
	}
}

func fromVkPresentMode(m vk.PresentMode) gputypes.PresentMode {
	switch m {
	case vk.PresentModeImmediate:
		return gputypes.PresentModeImmediate
	case vk.PresentModeMailbox:
		return gputypes.PresentModeMailbox
	case vk.PresentModeFifoRelaxed:
		return gputypes.PresentModeFifoRelaxed
	case vk.PresentModeFifo:
		return gputypes.PresentModeFifo
	default:
		return gputypes.PresentModeUndefined
	}
}

func compositeAlpha(m gputypes.CompositeAlphaMode) vk.CompositeAlphaFlagBits {
	switch m {
	case gputypes.CompositeAlphaModeInherit:
		return vk.CompositeAlphaInheritBit
	case gputypes.CompositeAlphaModePremultiplied:
		return vk.CompositeAlphaPreMultipliedBit
	case gputypes.CompositeAlphaModeUnpremultiplied:
		return vk.CompositeAlphaPostMultipliedBit
	default:
		return vk.CompositeAlphaOpaqueBit
	}
}

// fromVkCompositeAlpha lists the modes set in flags, in the order the core
// prefers them.
func fromVkCompositeAlpha(flags vk.CompositeAlphaFlags) []gputypes.CompositeAlphaMode {
	var out []gputypes.CompositeAlphaMode
	for _, m := range []struct {
		bit  vk.CompositeAlphaFlagBits
		mode gputypes.CompositeAlphaMode
	}{
		{vk.CompositeAlphaInheritBit, gputypes.CompositeAlphaModeInherit},
		{vk.CompositeAlphaOpaqueBit, gputypes.CompositeAlphaModeOpaque},
		{vk.CompositeAlphaPreMultipliedBit, gputypes.CompositeAlphaModePremultiplied},
		{vk.CompositeAlphaPostMultipliedBit, gputypes.CompositeAlphaModeUnpremultiplied},
	} {
		if vk.CompositeAlphaFlagBits(flags)&m.bit != 0 {
			out = append(out, m.mode)
		}
	}
	return out
}

func deviceType(t vk.PhysicalDeviceType) gputypes.DeviceType {
	switch t {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return gputypes.DeviceTypeDiscreteGPU
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return gputypes.DeviceTypeIntegratedGPU
	case vk.PhysicalDeviceTypeVirtualGpu:
		return gputypes.DeviceTypeVirtualGPU
	case vk.PhysicalDeviceTypeCpu:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}

func vendorName(id uint32) string {
	switch id {
	case 0x1002:
		return "AMD"
	case 0x10DE:
		return "NVIDIA"
	case 0x8086:
		return "Intel"
	case 0x13B5:
		return "ARM"
	case 0x5143:
		return "Qualcomm"
	case 0x106B:
		return "Apple"
	case 0x10005:
		return "Mesa"
	default:
		return fmt.Sprintf("0x%04X", id)
	}
}

// versionString formats a packed Vulkan version.
func versionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>22, (v>>12)&0x3FF, v&0xFFF)
}

// rowLength converts a row pitch in bytes into texels. Zero means tightly
// packed, which is also used for formats without a known texel size.
func rowLength(bytesPerRow uint32, f gputypes.TextureFormat) uint32 {
	bpp := cgpu.BytesPerPixel(f)
	if bpp == 0 || bytesPerRow == 0 {
		return 0
	}
	return bytesPerRow / bpp
}

func queryType(t cgpu.QueryType) vk.QueryType {
	switch t {
	case cgpu.QueryTypeOcclusion:
		return vk.QueryTypeOcclusion
	case cgpu.QueryTypePipelineStatistics:
		return vk.QueryTypePipelineStatistics
	default:
		return vk.QueryTypeTimestamp
	}
}
