package vulkan

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/andewx/vkframe"
)

func (d *Device) CreatePipelineLayout(cfg vkframe.LayoutConfig) (vkframe.LayoutHandle, error) {
	ranges := make([]vk.PushConstantRange, len(cfg.PushConstants))
	for i, r := range cfg.PushConstants {
		ranges[i] = vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	var layout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(d.device, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}, nil, &layout)
	if err := NewError(ret); err != nil {
		return 0, errors.Wrap(err, "failed to create pipeline layout")
	}
	return vkframe.LayoutHandle(d.layouts.put(layout)), nil
}

func (d *Device) DestroyPipelineLayout(h vkframe.LayoutHandle) {
	if layout, ok := d.layouts.take(uint64(h)); ok {
		vk.DestroyPipelineLayout(d.device, layout, nil)
	}
}

func (d *Device) DestroyPipeline(h vkframe.PipelineHandle) {
	if p, ok := d.pipelines.take(uint64(h)); ok {
		vk.DestroyPipeline(d.device, p, nil)
	}
}

// CreateGraphicsPipelines compiles the whole batch with one driver call.
// Shader modules live only for the duration of the call.
func (d *Device) CreateGraphicsPipelines(cfgs []vkframe.PipelineConfig) ([]vkframe.PipelineHandle, error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	var modules []vk.ShaderModule
	defer func() {
		for _, m := range modules {
			vk.DestroyShaderModule(d.device, m, nil)
		}
	}()

	infos := make([]vk.GraphicsPipelineCreateInfo, len(cfgs))
	for i, cfg := range cfgs {
		stages := make([]vk.PipelineShaderStageCreateInfo, len(cfg.Stages))
		for j, s := range cfg.Stages {
			m, err := d.shaderModule(s.Code)
			if err != nil {
				return nil, errors.Wrapf(err, "pipeline %d stage %d", i, j)
			}
			modules = append(modules, m)
			stages[j] = vk.PipelineShaderStageCreateInfo{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  vk.ShaderStageFlagBits(s.Stage),
				Module: m,
				PName:  safeString(s.EntryPoint()),
			}
		}
		infos[i] = d.pipelineInfo(cfg, stages)
	}

	pipelines := make([]vk.Pipeline, len(infos))
	ret := vk.CreateGraphicsPipelines(d.device, nil, uint32(len(infos)), infos, nil, pipelines)
	if err := NewError(ret); err != nil {
		for _, p := range pipelines {
			if p != vk.NullPipeline {
				vk.DestroyPipeline(d.device, p, nil)
			}
		}
		return nil, errors.Wrapf(vkframe.ErrCompileFailed, "%v", err)
	}
	out := make([]vkframe.PipelineHandle, len(pipelines))
	for i, p := range pipelines {
		out[i] = vkframe.PipelineHandle(d.pipelines.put(p))
	}
	d.log.Debug("vulkan: compiled pipelines", "count", len(out))
	return out, nil
}

func (d *Device) shaderModule(code []byte) (vk.ShaderModule, error) {
	var m vk.ShaderModule
	words, err := SPIRVWords(code)
	if err != nil {
		return m, err
	}
	ret := vk.CreateShaderModule(d.device, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}, nil, &m)
	if err := NewError(ret); err != nil {
		return m, errors.Wrap(err, "failed to create shader module")
	}
	return m, nil
}

func bool32(b bool) vk.Bool32 {
	if b {
		return vk.True
	}
	return vk.False
}

// pipelineInfo translates fixed-function state. Viewport and scissor are
// dynamic so pipelines survive swapchain rebuilds.
func (d *Device) pipelineInfo(cfg vkframe.PipelineConfig, stages []vk.PipelineShaderStageCreateInfo) vk.GraphicsPipelineCreateInfo {
	st := cfg.State

	bindings := make([]vk.VertexInputBindingDescription, len(st.Vertex.Bindings))
	for i, b := range st.Vertex.Bindings {
		rate := vk.VertexInputRateVertex
		if b.PerInstance {
			rate = vk.VertexInputRateInstance
		}
		bindings[i] = vk.VertexInputBindingDescription{Binding: b.Binding, Stride: b.Stride, InputRate: rate}
	}
	attributes := make([]vk.VertexInputAttributeDescription, len(st.Vertex.Attributes))
	for i, a := range st.Vertex.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Location: a.Location,
			Binding:  a.Binding,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}

	samples := st.Samples
	if samples == 0 {
		samples = 1
	}
	blend := vk.PipelineColorBlendAttachmentState{
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit | vk.ColorComponentGBit |
			vk.ColorComponentBBit | vk.ColorComponentABit),
		BlendEnable: bool32(st.BlendEnable),
	}
	if st.BlendEnable {
		blend.SrcColorBlendFactor = vk.BlendFactorSrcAlpha
		blend.DstColorBlendFactor = vk.BlendFactorOneMinusSrcAlpha
		blend.ColorBlendOp = vk.BlendOpAdd
		blend.SrcAlphaBlendFactor = vk.BlendFactorOne
		blend.DstAlphaBlendFactor = vk.BlendFactorZero
		blend.AlphaBlendOp = vk.BlendOpAdd
	}

	return vk.GraphicsPipelineCreateInfo{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(bindings)),
			PVertexBindingDescriptions:      bindings,
			VertexAttributeDescriptionCount: uint32(len(attributes)),
			PVertexAttributeDescriptions:    attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopology(st.Topology),
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonMode(st.PolygonMode),
			CullMode:    vk.CullModeFlags(st.CullMode),
			FrontFace:   vk.FrontFace(st.FrontFace),
			LineWidth:   st.LineWidth,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples:  vk.SampleCountFlagBits(samples),
			SampleShadingEnable:   bool32(st.SampleShading),
			MinSampleShading:      st.MinSampleShading,
			AlphaToCoverageEnable: bool32(st.AlphaToCoverage),
		},
		PDepthStencilState: &vk.PipelineDepthStencilStateCreateInfo{
			SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
			DepthTestEnable:  bool32(st.DepthTest),
			DepthWriteEnable: bool32(st.DepthWrite),
			DepthCompareOp:   vk.CompareOpLessOrEqual,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			LogicOp:         vk.LogicOpCopy,
			AttachmentCount: 1,
			PAttachments:    []vk.PipelineColorBlendAttachmentState{blend},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates:    []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor},
		},
		Layout:     lookup(d.layouts, "CreateGraphicsPipelines", uint64(cfg.Layout)),
		RenderPass: lookup(d.passes, "CreateGraphicsPipelines", uint64(cfg.Pass)),
		Subpass:    0,
	}
}
