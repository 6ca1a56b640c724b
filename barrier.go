package cgpu

// RemainingLevels selects every mip level or array layer from the base.
const RemainingLevels = ^uint32(0)

// BufferBarrierDescriptor transitions one buffer. QueueAcquire and
// QueueRelease transfer ownership between the recording queue's family and
// the family of QueueType.
type BufferBarrierDescriptor struct {
	Buffer       *Buffer
	SrcState     ResourceState
	DstState     ResourceState
	QueueAcquire bool
	QueueRelease bool
	QueueType    QueueType
}

// TextureBarrierDescriptor transitions one texture, or a single
// mip/layer when Subresource is set.
type TextureBarrierDescriptor struct {
	Texture      *Texture
	SrcState     ResourceState
	DstState     ResourceState
	QueueAcquire bool
	QueueRelease bool
	QueueType    QueueType
	Subresource  bool
	MipLevel     uint32
	ArrayLayer   uint32
}

// ResourceBarrierDescriptor is a batch of transitions issued as one native
// barrier.
type ResourceBarrierDescriptor struct {
	Buffers  []BufferBarrierDescriptor
	Textures []TextureBarrierDescriptor
}

// accessOf maps a resource state to the memory accesses it implies.
func accessOf(s ResourceState) AccessFlags {
	var a AccessFlags
	if s&ResourceStateCopySource != 0 {
		a |= AccessTransferRead
	}
	if s&ResourceStateCopyDest != 0 {
		a |= AccessTransferWrite
	}
	if s&ResourceStateVertexAndConstantBuffer != 0 {
		a |= AccessUniformRead | AccessVertexAttributeRead
	}
	if s&ResourceStateIndexBuffer != 0 {
		a |= AccessIndexRead
	}
	if s&ResourceStateUnorderedAccess != 0 {
		a |= AccessShaderRead | AccessShaderWrite
	}
	if s&ResourceStateIndirectArgument != 0 {
		a |= AccessIndirectCommandRead
	}
	if s&ResourceStateRenderTarget != 0 {
		a |= AccessColorAttachmentRead | AccessColorAttachmentWrite
	}
	if s&ResourceStateDepthWrite != 0 {
		a |= AccessDepthStencilAttachmentRead | AccessDepthStencilAttachmentWrite
	}
	if s&ResourceStateDepthRead != 0 {
		a |= AccessDepthStencilAttachmentRead
	}
	if s&ResourceStateShaderResource != 0 {
		a |= AccessShaderRead
	}
	if s&ResourceStatePresent != 0 {
		a |= AccessMemoryRead
	}
	return a
}

// layoutOf maps a resource state to the image layout it requires. The first
// matching state wins.
func layoutOf(s ResourceState) ImageLayout {
	switch {
	case s&ResourceStateCopySource != 0:
		return ImageLayoutTransferSrc
	case s&ResourceStateCopyDest != 0:
		return ImageLayoutTransferDst
	case s&ResourceStateRenderTarget != 0:
		return ImageLayoutColorAttachment
	case s&ResourceStateDepthWrite != 0:
		return ImageLayoutDepthStencilAttachment
	case s&ResourceStateDepthRead != 0:
		return ImageLayoutDepthStencilReadOnly
	case s&ResourceStateUnorderedAccess != 0:
		return ImageLayoutGeneral
	case s&ResourceStateShaderResource != 0:
		return ImageLayoutShaderReadOnly
	case s&ResourceStatePresent != 0:
		return ImageLayoutPresentSrc
	case s == ResourceStateCommon:
		return ImageLayoutGeneral
	default:
		return ImageLayoutUndefined
	}
}

// stagesOf derives the pipeline stages that perform access on a queue of
// type t. Compute and transfer queues fall back to all-commands for
// accesses they cannot express.
func stagesOf(d *AdapterDetail, access AccessFlags, t QueueType) PipelineStage {
	var s PipelineStage
	switch t {
	case QueueGraphics:
		if access&(AccessIndexRead|AccessVertexAttributeRead) != 0 {
			s |= PipelineStageVertexInput
		}
		if access&(AccessUniformRead|AccessShaderRead|AccessShaderWrite) != 0 {
			s |= PipelineStageVertexShader | PipelineStageFragmentShader | PipelineStageComputeShader
			if d.SupportsGeometryShader {
				s |= PipelineStageGeometryShader
			}
			if d.SupportsTessellation {
				s |= PipelineStageTessControlShader | PipelineStageTessEvalShader
			}
		}
		if access&AccessInputAttachmentRead != 0 {
			s |= PipelineStageFragmentShader
		}
		if access&(AccessColorAttachmentRead|AccessColorAttachmentWrite) != 0 {
			s |= PipelineStageColorAttachmentOutput
		}
		if access&(AccessDepthStencilAttachmentRead|AccessDepthStencilAttachmentWrite) != 0 {
			s |= PipelineStageEarlyFragmentTests | PipelineStageLateFragmentTests
		}
	case QueueCompute:
		if access&(AccessIndexRead|AccessVertexAttributeRead|AccessInputAttachmentRead|
			AccessColorAttachmentRead|AccessColorAttachmentWrite|
			AccessDepthStencilAttachmentRead|AccessDepthStencilAttachmentWrite) != 0 {
			return PipelineStageAllCommands
		}
		if access&(AccessUniformRead|AccessShaderRead|AccessShaderWrite) != 0 {
			s |= PipelineStageComputeShader
		}
	default:
		return PipelineStageAllCommands
	}
	if access&AccessIndirectCommandRead != 0 {
		s |= PipelineStageDrawIndirect
	}
	if access&(AccessTransferRead|AccessTransferWrite) != 0 {
		s |= PipelineStageTransfer
	}
	if access&(AccessHostRead|AccessHostWrite) != 0 {
		s |= PipelineStageHost
	}
	return s
}

// translateBarriers builds one native barrier batch for a command buffer
// recording on a queue of type t. UAV to UAV transitions become a
// write-after-write hazard barrier in GENERAL layout.
func translateBarriers(a *Adapter, t QueueType, desc *ResourceBarrierDescriptor) *BarrierBatch {
	batch := &BarrierBatch{}
	var srcAccess, dstAccess AccessFlags

	for _, bb := range desc.Buffers {
		nb := BufferBarrier{
			Buffer:         bb.Buffer.native,
			SrcState:       bb.SrcState,
			DstState:       bb.DstState,
			SrcQueueFamily: QueueFamilyIgnored,
			DstQueueFamily: QueueFamilyIgnored,
			Size:           WholeSize,
		}
		if bb.SrcState == ResourceStateUnorderedAccess && bb.DstState == ResourceStateUnorderedAccess {
			nb.SrcAccess = AccessShaderWrite
			nb.DstAccess = AccessShaderWrite | AccessShaderRead
		} else {
			nb.SrcAccess = accessOf(bb.SrcState)
			nb.DstAccess = accessOf(bb.DstState)
		}
		switch {
		case bb.QueueAcquire:
			nb.SrcQueueFamily = a.familyOrIgnored(bb.QueueType)
			nb.DstQueueFamily = a.familyOrIgnored(t)
		case bb.QueueRelease:
			nb.SrcQueueFamily = a.familyOrIgnored(t)
			nb.DstQueueFamily = a.familyOrIgnored(bb.QueueType)
		}
		srcAccess |= nb.SrcAccess
		dstAccess |= nb.DstAccess
		batch.Buffers = append(batch.Buffers, nb)
	}

	for _, tb := range desc.Textures {
		nt := TextureBarrier{
			Texture:        tb.Texture.native,
			SrcState:       tb.SrcState,
			DstState:       tb.DstState,
			SrcQueueFamily: QueueFamilyIgnored,
			DstQueueFamily: QueueFamilyIgnored,
			Aspect:         tb.Texture.aspect,
			MipLevelCount:  RemainingLevels,
			ArrayLayers:    RemainingLevels,
		}
		if tb.SrcState == ResourceStateUnorderedAccess && tb.DstState == ResourceStateUnorderedAccess {
			nt.SrcAccess = AccessShaderWrite
			nt.DstAccess = AccessShaderWrite | AccessShaderRead
			nt.OldLayout = ImageLayoutGeneral
			nt.NewLayout = ImageLayoutGeneral
		} else {
			nt.SrcAccess = accessOf(tb.SrcState)
			nt.DstAccess = accessOf(tb.DstState)
			nt.OldLayout = layoutOf(tb.SrcState)
			nt.NewLayout = layoutOf(tb.DstState)
		}
		if tb.Subresource {
			nt.BaseMipLevel, nt.MipLevelCount = tb.MipLevel, 1
			nt.BaseArrayLayer, nt.ArrayLayers = tb.ArrayLayer, 1
		}
		// An undefined source has no contents to hand over.
		if tb.SrcState != ResourceStateUndefined {
			switch {
			case tb.QueueAcquire:
				nt.SrcQueueFamily = a.familyOrIgnored(tb.QueueType)
				nt.DstQueueFamily = a.familyOrIgnored(t)
			case tb.QueueRelease:
				nt.SrcQueueFamily = a.familyOrIgnored(t)
				nt.DstQueueFamily = a.familyOrIgnored(tb.QueueType)
			}
		}
		srcAccess |= nt.SrcAccess
		dstAccess |= nt.DstAccess
		batch.Textures = append(batch.Textures, nt)
	}

	batch.SrcStage = stagesOf(&a.detail, srcAccess, t)
	batch.DstStage = stagesOf(&a.detail, dstAccess, t)
	if batch.SrcStage == 0 {
		batch.SrcStage = PipelineStageBottomOfPipe
	}
	if batch.DstStage == 0 {
		batch.DstStage = PipelineStageTopOfPipe
	}
	return batch
}
