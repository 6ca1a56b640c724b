package cgpu

import "testing"

// testAdapter builds an adapter with a graphics family 0 and a dedicated
// compute family 1.
func testAdapter(detail AdapterDetail) *Adapter {
	a := &Adapter{
		detail: detail,
		families: []QueueFamily{
			{Flags: QueueFlagGraphics | QueueFlagCompute | QueueFlagTransfer, Count: 1},
			{Flags: QueueFlagCompute | QueueFlagTransfer, Count: 1},
		},
	}
	for t := range queueTypeCount {
		a.familyIndex[t] = selectQueueFamily(a.families, t)
	}
	return a
}

func TestAccessOf(t *testing.T) {
	tests := []struct {
		state ResourceState
		want  AccessFlags
	}{
		{ResourceStateUndefined, 0},
		{ResourceStateCopySource, AccessTransferRead},
		{ResourceStateCopyDest, AccessTransferWrite},
		{ResourceStateIndexBuffer, AccessIndexRead},
		{ResourceStateVertexAndConstantBuffer, AccessUniformRead | AccessVertexAttributeRead},
		{ResourceStateUnorderedAccess, AccessShaderRead | AccessShaderWrite},
		{ResourceStateRenderTarget, AccessColorAttachmentRead | AccessColorAttachmentWrite},
		{ResourceStateDepthRead, AccessDepthStencilAttachmentRead},
		{ResourceStateShaderResource, AccessShaderRead},
		{ResourceStatePixelShaderResource, AccessShaderRead},
		{ResourceStatePresent, AccessMemoryRead},
		{ResourceStateIndirectArgument, AccessIndirectCommandRead},
	}
	for _, tt := range tests {
		if got := accessOf(tt.state); got != tt.want {
			t.Errorf("accessOf(%#x) = %#x, want %#x", tt.state, got, tt.want)
		}
	}
}

func TestLayoutOf(t *testing.T) {
	tests := []struct {
		state ResourceState
		want  ImageLayout
	}{
		{ResourceStateUndefined, ImageLayoutUndefined},
		{ResourceStateCopySource, ImageLayoutTransferSrc},
		{ResourceStateCopyDest, ImageLayoutTransferDst},
		{ResourceStateRenderTarget, ImageLayoutColorAttachment},
		{ResourceStateDepthWrite, ImageLayoutDepthStencilAttachment},
		{ResourceStateDepthRead, ImageLayoutDepthStencilReadOnly},
		{ResourceStateUnorderedAccess, ImageLayoutGeneral},
		{ResourceStateShaderResource, ImageLayoutShaderReadOnly},
		{ResourceStatePresent, ImageLayoutPresentSrc},
		{ResourceStateCommon, ImageLayoutGeneral},
	}
	for _, tt := range tests {
		if got := layoutOf(tt.state); got != tt.want {
			t.Errorf("layoutOf(%#x) = %d, want %d", tt.state, got, tt.want)
		}
	}
}

func TestStagesOfGraphicsShaderRead(t *testing.T) {
	base := stagesOf(&AdapterDetail{}, AccessShaderRead, QueueGraphics)
	want := PipelineStageVertexShader | PipelineStageFragmentShader | PipelineStageComputeShader
	if base != want {
		t.Errorf("stagesOf(ShaderRead) = %#x, want %#x", base, want)
	}

	full := stagesOf(&AdapterDetail{SupportsGeometryShader: true, SupportsTessellation: true}, AccessShaderRead, QueueGraphics)
	extra := PipelineStageGeometryShader | PipelineStageTessControlShader | PipelineStageTessEvalShader
	if full != want|extra {
		t.Errorf("stagesOf with geometry and tessellation = %#x, want %#x", full, want|extra)
	}
}

func TestStagesOfComputeQueue(t *testing.T) {
	d := &AdapterDetail{}
	if got := stagesOf(d, AccessShaderWrite, QueueCompute); got != PipelineStageComputeShader {
		t.Errorf("compute ShaderWrite = %#x, want ComputeShader", got)
	}
	if got := stagesOf(d, AccessColorAttachmentWrite, QueueCompute); got != PipelineStageAllCommands {
		t.Errorf("compute ColorAttachmentWrite = %#x, want AllCommands", got)
	}
	if got := stagesOf(d, AccessTransferWrite, QueueTransfer); got != PipelineStageAllCommands {
		t.Errorf("transfer queue = %#x, want AllCommands", got)
	}
	if got := stagesOf(d, AccessTransferWrite|AccessHostRead, QueueGraphics); got != PipelineStageTransfer|PipelineStageHost {
		t.Errorf("graphics transfer+host = %#x", got)
	}
}

func TestTranslateBarriersUAVToUAV(t *testing.T) {
	a := testAdapter(AdapterDetail{})
	tex := &Texture{aspect: ImageAspectColor}
	batch := translateBarriers(a, QueueGraphics, &ResourceBarrierDescriptor{
		Buffers:  []BufferBarrierDescriptor{{Buffer: &Buffer{}, SrcState: ResourceStateUnorderedAccess, DstState: ResourceStateUnorderedAccess}},
		Textures: []TextureBarrierDescriptor{{Texture: tex, SrcState: ResourceStateUnorderedAccess, DstState: ResourceStateUnorderedAccess}},
	})

	bb := batch.Buffers[0]
	if bb.SrcAccess != AccessShaderWrite || bb.DstAccess != AccessShaderWrite|AccessShaderRead {
		t.Errorf("buffer access = %#x -> %#x", bb.SrcAccess, bb.DstAccess)
	}
	if bb.Size != WholeSize || bb.SrcQueueFamily != QueueFamilyIgnored {
		t.Errorf("buffer range/family = %d/%d", bb.Size, bb.SrcQueueFamily)
	}
	tb := batch.Textures[0]
	if tb.OldLayout != ImageLayoutGeneral || tb.NewLayout != ImageLayoutGeneral {
		t.Errorf("texture layouts = %d -> %d, want GENERAL", tb.OldLayout, tb.NewLayout)
	}
	if tb.MipLevelCount != RemainingLevels || tb.ArrayLayers != RemainingLevels {
		t.Errorf("texture range = %d mips, %d layers, want all", tb.MipLevelCount, tb.ArrayLayers)
	}
	if batch.SrcStage&PipelineStageComputeShader == 0 || batch.DstStage&PipelineStageComputeShader == 0 {
		t.Errorf("stages = %#x -> %#x, want compute shader", batch.SrcStage, batch.DstStage)
	}
}

func TestTranslateBarriersFromUndefined(t *testing.T) {
	a := testAdapter(AdapterDetail{})
	batch := translateBarriers(a, QueueGraphics, &ResourceBarrierDescriptor{
		Textures: []TextureBarrierDescriptor{{
			Texture:  &Texture{aspect: ImageAspectColor},
			SrcState: ResourceStateUndefined,
			DstState: ResourceStateCopyDest,
		}},
	})
	tb := batch.Textures[0]
	if tb.OldLayout != ImageLayoutUndefined || tb.NewLayout != ImageLayoutTransferDst {
		t.Errorf("layouts = %d -> %d", tb.OldLayout, tb.NewLayout)
	}
	if batch.SrcStage != PipelineStageBottomOfPipe {
		t.Errorf("SrcStage = %#x, want BottomOfPipe", batch.SrcStage)
	}
	if batch.DstStage != PipelineStageTransfer {
		t.Errorf("DstStage = %#x, want Transfer", batch.DstStage)
	}
}

func TestTranslateBarriersQueueOwnership(t *testing.T) {
	a := testAdapter(AdapterDetail{})
	buf := &Buffer{}
	tex := &Texture{aspect: ImageAspectColor}

	acquire := translateBarriers(a, QueueGraphics, &ResourceBarrierDescriptor{
		Buffers: []BufferBarrierDescriptor{{Buffer: buf, SrcState: ResourceStateCopyDest,
			DstState: ResourceStateShaderResource, QueueAcquire: true, QueueType: QueueCompute}},
		Textures: []TextureBarrierDescriptor{{Texture: tex, SrcState: ResourceStateCopyDest,
			DstState: ResourceStateShaderResource, QueueAcquire: true, QueueType: QueueCompute}},
	})
	if b := acquire.Buffers[0]; b.SrcQueueFamily != 1 || b.DstQueueFamily != 0 {
		t.Errorf("buffer acquire families = %d -> %d, want 1 -> 0", b.SrcQueueFamily, b.DstQueueFamily)
	}
	if tb := acquire.Textures[0]; tb.SrcQueueFamily != 1 || tb.DstQueueFamily != 0 {
		t.Errorf("texture acquire families = %d -> %d, want 1 -> 0", tb.SrcQueueFamily, tb.DstQueueFamily)
	}

	release := translateBarriers(a, QueueGraphics, &ResourceBarrierDescriptor{
		Buffers: []BufferBarrierDescriptor{{Buffer: buf, SrcState: ResourceStateShaderResource,
			DstState: ResourceStateCopyDest, QueueRelease: true, QueueType: QueueCompute}},
	})
	if b := release.Buffers[0]; b.SrcQueueFamily != 0 || b.DstQueueFamily != 1 {
		t.Errorf("buffer release families = %d -> %d, want 0 -> 1", b.SrcQueueFamily, b.DstQueueFamily)
	}

	undefined := translateBarriers(a, QueueGraphics, &ResourceBarrierDescriptor{
		Textures: []TextureBarrierDescriptor{{Texture: tex, SrcState: ResourceStateUndefined,
			DstState: ResourceStateShaderResource, QueueAcquire: true, QueueType: QueueCompute}},
	})
	if tb := undefined.Textures[0]; tb.SrcQueueFamily != QueueFamilyIgnored || tb.DstQueueFamily != QueueFamilyIgnored {
		t.Errorf("undefined texture kept ownership transfer %d -> %d", tb.SrcQueueFamily, tb.DstQueueFamily)
	}
}

func TestTranslateBarriersSubresource(t *testing.T) {
	a := testAdapter(AdapterDetail{})
	batch := translateBarriers(a, QueueGraphics, &ResourceBarrierDescriptor{
		Textures: []TextureBarrierDescriptor{{
			Texture:     &Texture{aspect: ImageAspectDepth | ImageAspectStencil},
			SrcState:    ResourceStateDepthWrite,
			DstState:    ResourceStateShaderResource,
			Subresource: true,
			MipLevel:    2,
			ArrayLayer:  3,
		}},
	})
	tb := batch.Textures[0]
	if tb.BaseMipLevel != 2 || tb.MipLevelCount != 1 || tb.BaseArrayLayer != 3 || tb.ArrayLayers != 1 {
		t.Errorf("subresource = mip %d+%d layer %d+%d", tb.BaseMipLevel, tb.MipLevelCount, tb.BaseArrayLayer, tb.ArrayLayers)
	}
	if tb.Aspect != ImageAspectDepth|ImageAspectStencil {
		t.Errorf("Aspect = %#x", tb.Aspect)
	}
}

func TestTranslateBarriersRoundTrip(t *testing.T) {
	a := testAdapter(AdapterDetail{})
	tex := &Texture{aspect: ImageAspectColor}
	states := []ResourceState{
		ResourceStateRenderTarget, ResourceStateShaderResource, ResourceStateCopySource,
		ResourceStateCopyDest, ResourceStatePresent, ResourceStateDepthRead,
	}
	for _, s := range states {
		for _, d := range states {
			there := translateBarriers(a, QueueGraphics, &ResourceBarrierDescriptor{
				Textures: []TextureBarrierDescriptor{{Texture: tex, SrcState: s, DstState: d}},
			}).Textures[0]
			back := translateBarriers(a, QueueGraphics, &ResourceBarrierDescriptor{
				Textures: []TextureBarrierDescriptor{{Texture: tex, SrcState: d, DstState: s}},
			}).Textures[0]
			if there.OldLayout != back.NewLayout || there.NewLayout != back.OldLayout {
				t.Errorf("%#x<->%#x layouts %d->%d, back %d->%d", s, d,
					there.OldLayout, there.NewLayout, back.OldLayout, back.NewLayout)
			}
			if there.SrcAccess != back.DstAccess || there.DstAccess != back.SrcAccess {
				t.Errorf("%#x<->%#x accesses not mirrored", s, d)
			}
		}
	}
}
