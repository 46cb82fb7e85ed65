package vkframe

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// ShaderStage is a bit set of pipeline stages, using the Vulkan bit values.
type ShaderStage uint32

const (
	StageVertex      ShaderStage = 0x01
	StageTessControl ShaderStage = 0x02
	StageTessEval    ShaderStage = 0x04
	StageGeometry    ShaderStage = 0x08
	StageFragment    ShaderStage = 0x10
	StageCompute     ShaderStage = 0x20

	StageAllGraphics = StageVertex | StageTessControl | StageTessEval | StageGeometry | StageFragment
)

// ShaderModule is one SPIR-V stage. Entry defaults to "main".
type ShaderModule struct {
	Stage ShaderStage
	Entry string
	Code  []byte
}

func (m ShaderModule) EntryPoint() string {
	if m.Entry == "" {
		return "main"
	}
	return m.Entry
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

// ShaderSet is the per-pipeline part of a cache request.
type ShaderSet struct {
	Stages        []ShaderModule
	PushConstants []PushConstantRange
}

type Topology uint32

const (
	TopologyPointList Topology = iota
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
	TopologyTriangleFan
)

type PolygonMode uint32

const (
	PolygonFill PolygonMode = iota
	PolygonLine
	PolygonPoint
)

type CullMode uint32

const (
	CullNone CullMode = iota
	CullFront
	CullBack
	CullFrontAndBack
)

type FrontFace uint32

const (
	FrontFaceCounterClockwise FrontFace = iota
	FrontFaceClockwise
)

type VertexBinding struct {
	Binding     uint32
	Stride      uint32
	PerInstance bool
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type VertexLayout struct {
	Bindings   []VertexBinding
	Attributes []VertexAttribute
}

// FixedFunctionState is the non-shader part of a graphics pipeline.
// Viewport and scissor are always dynamic.
type FixedFunctionState struct {
	Topology         Topology
	PolygonMode      PolygonMode
	CullMode         CullMode
	FrontFace        FrontFace
	LineWidth        float32
	Samples          uint32
	SampleShading    bool
	MinSampleShading float32
	AlphaToCoverage  bool
	BlendEnable      bool
	DepthTest        bool
	DepthWrite       bool
	Vertex           VertexLayout
}

// DefaultState draws filled, unculled triangle lists without blending.
func DefaultState() FixedFunctionState {
	return FixedFunctionState{
		Topology:         TopologyTriangleList,
		PolygonMode:      PolygonFill,
		CullMode:         CullNone,
		FrontFace:        FrontFaceClockwise,
		LineWidth:        1,
		Samples:          1,
		MinSampleShading: 1,
	}
}

// encoder builds the canonical byte form hashed by the pipeline cache:
// fixed-width little-endian fields, length-prefixed slices.
type encoder struct {
	buf []byte
}

func (e *encoder) u32(v uint32)  { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64)  { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }
func (e *encoder) f32(v float32) { e.u32(math.Float32bits(v)) }

func (e *encoder) flag(b bool) {
	if b {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) bytes(b []byte) {
	e.u64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) pass(p PassConfig) {
	e.u32(uint32(p.Format))
	e.u32(p.Samples)
}

func (e *encoder) state(s FixedFunctionState) {
	e.u32(uint32(s.Topology))
	e.u32(uint32(s.PolygonMode))
	e.u32(uint32(s.CullMode))
	e.u32(uint32(s.FrontFace))
	e.f32(s.LineWidth)
	e.u32(s.Samples)
	e.flag(s.SampleShading)
	e.f32(s.MinSampleShading)
	e.flag(s.AlphaToCoverage)
	e.flag(s.BlendEnable)
	e.flag(s.DepthTest)
	e.flag(s.DepthWrite)

	e.u32(uint32(len(s.Vertex.Bindings)))
	for _, b := range s.Vertex.Bindings {
		e.u32(b.Binding)
		e.u32(b.Stride)
		e.flag(b.PerInstance)
	}
	e.u32(uint32(len(s.Vertex.Attributes)))
	for _, a := range s.Vertex.Attributes {
		e.u32(a.Location)
		e.u32(a.Binding)
		e.u32(uint32(a.Format))
		e.u32(a.Offset)
	}
}

func (e *encoder) shaders(set ShaderSet) {
	e.u32(uint32(len(set.PushConstants)))
	for _, r := range set.PushConstants {
		e.u32(uint32(r.Stages))
		e.u32(r.Offset)
		e.u32(r.Size)
	}
	e.u32(uint32(len(set.Stages)))
	for _, m := range set.Stages {
		e.u32(uint32(m.Stage))
		e.bytes([]byte(m.EntryPoint()))
		e.bytes(m.Code)
	}
}

// passKey identifies render passes that are compatible for pipeline
// creation. It survives pass recreation as long as the format does.
func passKey(p PassConfig) uint64 {
	var e encoder
	e.pass(p)
	return xxhash.Sum64(e.buf)
}

// encodeRequest returns the canonical bytes of one pipeline request.
func encodeRequest(passKey uint64, state FixedFunctionState, set ShaderSet) []byte {
	e := encoder{buf: make([]byte, 0, 256)}
	e.u64(passKey)
	e.state(state)
	e.shaders(set)
	return e.buf
}

var verifySalt = []byte("vkframe/pipeline-verify\x00")

// verifyDigest is a second digest over the same bytes, salted so that it
// is independent of the primary key.
func verifyDigest(data []byte) uint64 {
	d := xxhash.New()
	d.Write(verifySalt)
	d.Write(data)
	return d.Sum64()
}
