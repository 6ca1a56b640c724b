package cgpu

import "fmt"

// ShaderResource is one reflected shader binding. Push constants carry
// their byte range in Offset and Size.
type ShaderResource struct {
	Name      string
	Set       uint32
	Binding   uint32
	Type      ResourceType
	Stages    ShaderStage
	ArraySize uint32
	Offset    uint32
	Size      uint32
}

// EntryPoint is one reflected entry point.
type EntryPoint struct {
	Name  string
	Stage ShaderStage
}

// ShaderReflection is the binding interface of a shader library. It is
// produced by an offline tool or by the reflection package.
type ShaderReflection struct {
	EntryPoints []EntryPoint
	Resources   []ShaderResource
}

// Stages returns the union of the entry point stages.
func (r *ShaderReflection) Stages() ShaderStage {
	var s ShaderStage
	for _, ep := range r.EntryPoints {
		s |= ep.Stage
	}
	return s
}

// EntryPoint looks up an entry point by name.
func (r *ShaderReflection) EntryPoint(name string) (EntryPoint, bool) {
	for _, ep := range r.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPoint{}, false
}

// ShaderLibrary is a compiled shader module plus its reflection.
type ShaderLibrary struct {
	device     *Device
	native     NativeShaderLibrary
	name       string
	reflection *ShaderReflection
}

// CreateShaderLibrary creates a shader module from SPIR-V or WGSL. A nil
// Reflection yields a library that can only be used with root signatures
// built from other libraries.
func (d *Device) CreateShaderLibrary(desc *ShaderLibraryDescriptor) (*ShaderLibrary, error) {
	if len(desc.SPIRV) == 0 && desc.WGSL == "" {
		return nil, creationFailed("CreateShaderLibrary", fmt.Errorf("library %q has no code", desc.Name))
	}
	nl, err := d.native.CreateShaderLibrary(desc)
	if err != nil {
		return nil, creationFailed("CreateShaderLibrary", logNative(d.log, "CreateShaderLibrary", err))
	}
	d.SetName(nl, desc.Name)
	refl := desc.Reflection
	if refl == nil {
		refl = &ShaderReflection{}
	}
	d.log.Debug("cgpu: shader library created", "name", desc.Name, "resources", len(refl.Resources))
	return &ShaderLibrary{device: d, native: nl, name: desc.Name, reflection: refl}, nil
}

// Name returns the debug name.
func (l *ShaderLibrary) Name() string { return l.name }

// Reflection returns the binding interface.
func (l *ShaderLibrary) Reflection() *ShaderReflection { return l.reflection }

// Native returns the backend module.
func (l *ShaderLibrary) Native() NativeShaderLibrary { return l.native }

// Free destroys the module.
func (l *ShaderLibrary) Free() {
	if l.native != nil {
		l.native.Destroy()
		l.native = nil
	}
}

// PipelineShader selects one entry point of a library for a pipeline stage.
type PipelineShader struct {
	Library *ShaderLibrary
	Stage   ShaderStage
	Entry   string
}

func (s PipelineShader) native() ShaderStageEntry {
	return ShaderStageEntry{Stage: s.Stage, Library: s.Library.native, Entry: s.Entry}
}
