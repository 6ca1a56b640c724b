// Package reflection derives the binding interface of WGSL shaders.
//
// The source is parsed and lowered with naga; no code is generated. Every
// global resource becomes a cgpu.ShaderResource whose stage mask holds the
// entry points that reach it, directly or through called functions.
package reflection

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/gogpu/cgpu"
	"github.com/gogpu/cgpu/internal/lru"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// CacheSize is the number of reflected sources kept by Reflect.
const CacheSize = 64

var reflected = lru.New[string, *cgpu.ShaderReflection](CacheSize)

// Reflect parses WGSL source and returns its entry points and resources.
// Results are cached by source; every call returns a copy the caller owns.
func Reflect(source string) (*cgpu.ShaderReflection, error) {
	if r, ok := reflected.Get(source); ok {
		return clone(r), nil
	}
	r, err := parse(source)
	if err != nil {
		return nil, err
	}
	reflected.Add(source, r)
	return clone(r), nil
}

func clone(r *cgpu.ShaderReflection) *cgpu.ShaderReflection {
	return &cgpu.ShaderReflection{
		EntryPoints: slices.Clone(r.EntryPoints),
		Resources:   slices.Clone(r.Resources),
	}
}

func parse(source string) (*cgpu.ShaderReflection, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("reflection: %w", err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("reflection: %w", err)
	}
	return Module(module)
}

// Module reflects an already lowered module.
func Module(m *ir.Module) (*cgpu.ShaderReflection, error) {
	r := &cgpu.ShaderReflection{}
	used := make(map[ir.GlobalVariableHandle]cgpu.ShaderStage)
	for i := range m.EntryPoints {
		ep := &m.EntryPoints[i]
		stage, ok := stageOf(ep.Stage)
		if !ok {
			continue
		}
		r.EntryPoints = append(r.EntryPoints, cgpu.EntryPoint{Name: ep.Name, Stage: stage})
		for h := range reachableGlobals(m, &ep.Function) {
			used[h] |= stage
		}
	}
	for i, g := range m.GlobalVariables {
		stages := used[ir.GlobalVariableHandle(i)]
		if stages == 0 {
			continue
		}
		res, ok, err := resource(m, &g)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		res.Stages = stages
		r.Resources = append(r.Resources, res)
	}
	slices.SortFunc(r.Resources, func(a, b cgpu.ShaderResource) int {
		if c := cmp.Compare(a.Set, b.Set); c != 0 {
			return c
		}
		return cmp.Compare(a.Binding, b.Binding)
	})
	return r, nil
}

// Descriptor reflects source and returns a library descriptor carrying the
// WGSL and its reflection.
func Descriptor(name, source string) (*cgpu.ShaderLibraryDescriptor, error) {
	refl, err := Reflect(source)
	if err != nil {
		return nil, fmt.Errorf("%w (shader %q)", err, name)
	}
	return &cgpu.ShaderLibraryDescriptor{Name: name, WGSL: source, Reflection: refl}, nil
}

func stageOf(s ir.ShaderStage) (cgpu.ShaderStage, bool) {
	switch s {
	case ir.StageVertex:
		return cgpu.ShaderStageVertex, true
	case ir.StageFragment:
		return cgpu.ShaderStageFragment, true
	case ir.StageCompute:
		return cgpu.ShaderStageCompute, true
	default:
		return 0, false
	}
}

// resource maps one global variable. Private and workgroup variables are
// not resources and return ok == false.
func resource(m *ir.Module, g *ir.GlobalVariable) (cgpu.ShaderResource, bool, error) {
	res := cgpu.ShaderResource{Name: g.Name, ArraySize: 1}
	if g.Binding != nil {
		res.Set = g.Binding.Group
		res.Binding = g.Binding.Binding
	}
	inner := m.Types[g.Type].Inner
	switch g.Space {
	case ir.SpacePushConstant, ir.SpaceImmediate:
		res.Type = cgpu.ResourceTypePushConstant
		res.Set, res.Binding = 0, 0
		res.Size = ir.TypeSize(m, g.Type)
		return res, true, nil
	case ir.SpaceUniform:
		res.Type = cgpu.ResourceTypeUniformBuffer
		res.Size = ir.TypeSize(m, g.Type)
	case ir.SpaceStorage:
		res.Type = cgpu.ResourceTypeRWBuffer
		if g.Access == ir.StorageRead {
			res.Type = cgpu.ResourceTypeBuffer
		}
	case ir.SpaceHandle:
		if arr, ok := inner.(ir.BindingArrayType); ok {
			res.ArraySize = 0
			if arr.Size != nil {
				res.ArraySize = *arr.Size
			}
			inner = m.Types[arr.Base].Inner
		}
		t, err := handleType(inner)
		if err != nil {
			return res, false, fmt.Errorf("reflection: %s: %w", g.Name, err)
		}
		res.Type = t
	default:
		return res, false, nil
	}
	if g.Binding == nil {
		return res, false, fmt.Errorf("reflection: resource %q has no @group/@binding", g.Name)
	}
	return res, true, nil
}

func handleType(inner ir.TypeInner) (cgpu.ResourceType, error) {
	switch t := inner.(type) {
	case ir.SamplerType:
		return cgpu.ResourceTypeSampler, nil
	case ir.ImageType:
		switch {
		case t.Class == ir.ImageClassStorage:
			return cgpu.ResourceTypeRWTexture, nil
		case t.Dim == ir.DimCube:
			return cgpu.ResourceTypeTextureCube, nil
		default:
			return cgpu.ResourceTypeTexture, nil
		}
	case ir.AccelerationStructureType:
		return cgpu.ResourceTypeRayTracing, nil
	default:
		return 0, fmt.Errorf("%w: handle of type %T", cgpu.ErrUnsupported, inner)
	}
}

// reachableGlobals collects the globals f and every function it calls
// refer to.
func reachableGlobals(m *ir.Module, f *ir.Function) map[ir.GlobalVariableHandle]struct{} {
	out := make(map[ir.GlobalVariableHandle]struct{})
	visited := make(map[ir.FunctionHandle]bool)
	var visit func(f *ir.Function)
	visit = func(f *ir.Function) {
		for _, e := range f.Expressions {
			if g, ok := e.Kind.(ir.ExprGlobalVariable); ok {
				out[g.Variable] = struct{}{}
			}
		}
		for _, h := range calls(f.Body, nil) {
			if visited[h] || int(h) >= len(m.Functions) {
				continue
			}
			visited[h] = true
			visit(&m.Functions[h])
		}
	}
	visit(f)
	return out
}

func calls(b ir.Block, out []ir.FunctionHandle) []ir.FunctionHandle {
	for _, s := range b {
		switch k := s.Kind.(type) {
		case ir.StmtCall:
			out = append(out, k.Function)
		case ir.StmtBlock:
			out = calls(k.Block, out)
		case ir.StmtIf:
			out = calls(k.Accept, out)
			out = calls(k.Reject, out)
		case ir.StmtLoop:
			out = calls(k.Body, out)
			out = calls(k.Continuing, out)
		case ir.StmtSwitch:
			for _, c := range k.Cases {
				out = calls(c.Body, out)
			}
		}
	}
	return out
}
