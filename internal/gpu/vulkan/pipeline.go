package vulkan

import (
	"fmt"
	"os"
	"unsafe"

	"voxel-terrain/internal/gpu"

	vk "github.com/vulkan-go/vulkan"
)

//go:generate glslc -O -o ../../../assets/shaders/terrain_meshing.comp.spv ../../../assets/shaders/terrain_meshing.comp

// Descriptor bindings of the meshing shader.
const (
	bindCounter = iota
	bindVertices
	bindEdgeTable
	bindTriTable
	bindField
	bindingCount
)

// pipeline is the marching-cubes compute pipeline and its single
// descriptor set.
type pipeline struct {
	ctx *Context

	setLayout vk.DescriptorSetLayout
	pool      vk.DescriptorPool
	set       vk.DescriptorSet
	layout    vk.PipelineLayout
	module    vk.ShaderModule
	pipeline  vk.Pipeline
}

// loadSPIRV reads a compiled shader and checks it is whole words.
func loadSPIRV(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shader: %w", err)
	}
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("shader %s: %d bytes is not SPIR-V", path, len(data))
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&data[0])), len(data)/4), nil
}

func newPipeline(c *Context, spirvPath string) (*pipeline, error) {
	p := &pipeline{ctx: c}
	if err := p.init(spirvPath); err != nil {
		p.destroy()
		return nil, err
	}
	return p, nil
}

func (p *pipeline) init(spirvPath string) error {
	dev := p.ctx.Device
	stage := vk.ShaderStageFlags(vk.ShaderStageComputeBit)

	binds := make([]vk.DescriptorSetLayoutBinding, bindingCount)
	for i := range binds {
		binds[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(i),
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      stage,
		}
	}
	binds[bindField].DescriptorType = vk.DescriptorTypeUniformBuffer

	var setLayout vk.DescriptorSetLayout
	err := NewError(vk.CreateDescriptorSetLayout(dev, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}, nil, &setLayout))
	if err != nil {
		return fmt.Errorf("create descriptor set layout: %w", err)
	}
	p.setLayout = setLayout

	pools := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: bindingCount - 1},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
	}
	var pool vk.DescriptorPool
	err = NewError(vk.CreateDescriptorPool(dev, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(pools)),
		PPoolSizes:    pools,
	}, nil, &pool))
	if err != nil {
		return fmt.Errorf("create descriptor pool: %w", err)
	}
	p.pool = pool

	var set vk.DescriptorSet
	err = NewError(vk.AllocateDescriptorSets(dev, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{setLayout},
	}, &set))
	if err != nil {
		return fmt.Errorf("allocate descriptor set: %w", err)
	}
	p.set = set

	var layout vk.PipelineLayout
	err = NewError(vk.CreatePipelineLayout(dev, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{setLayout},
		PushConstantRangeCount: 1,
		PPushConstantRanges: []vk.PushConstantRange{{
			StageFlags: stage,
			Offset:     0,
			Size:       gpu.PushConstantSize,
		}},
	}, nil, &layout))
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.layout = layout

	code, err := loadSPIRV(spirvPath)
	if err != nil {
		return err
	}
	var module vk.ShaderModule
	err = NewError(vk.CreateShaderModule(dev, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}, nil, &module))
	if err != nil {
		return fmt.Errorf("create shader module %s: %w", spirvPath, err)
	}
	p.module = module

	pipelines := make([]vk.Pipeline, 1)
	err = NewError(vk.CreateComputePipelines(dev, nil, 1, []vk.ComputePipelineCreateInfo{{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Layout: layout,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: module,
			PName:  "main\x00",
		},
	}}, nil, pipelines))
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	p.pipeline = pipelines[0]
	return nil
}

// bind points every descriptor at its buffer. The set is written once and
// reused by every dispatch.
func (p *pipeline) bind(bufs [bindingCount]*Buffer) {
	writes := make([]vk.WriteDescriptorSet, bindingCount)
	for i, b := range bufs {
		typ := vk.DescriptorTypeStorageBuffer
		if i == bindField {
			typ = vk.DescriptorTypeUniformBuffer
		}
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          p.set,
			DstBinding:      uint32(i),
			DescriptorCount: 1,
			DescriptorType:  typ,
			PBufferInfo: []vk.DescriptorBufferInfo{{
				Buffer: b.buffer,
				Offset: 0,
				Range:  vk.DeviceSize(b.size),
			}},
		}
	}
	vk.UpdateDescriptorSets(p.ctx.Device, uint32(len(writes)), writes, 0, nil)
}

// record appends the dispatch for one chunk to cmd.
func (p *pipeline) record(cmd vk.CommandBuffer, transform *[4]float32) {
	vk.CmdBindPipeline(cmd, vk.PipelineBindPointCompute, p.pipeline)
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointCompute, p.layout, 0, 1, []vk.DescriptorSet{p.set}, 0, nil)
	vk.CmdPushConstants(cmd, p.layout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, gpu.PushConstantSize, unsafe.Pointer(transform))
	vk.CmdDispatch(cmd, gpu.GroupsPerAxis, gpu.GroupsPerAxis, gpu.GroupsPerAxis)
}

func (p *pipeline) destroy() {
	dev := p.ctx.Device
	if p.pipeline != nil {
		vk.DestroyPipeline(dev, p.pipeline, nil)
	}
	if p.module != nil {
		vk.DestroyShaderModule(dev, p.module, nil)
	}
	if p.layout != nil {
		vk.DestroyPipelineLayout(dev, p.layout, nil)
	}
	if p.pool != nil {
		vk.DestroyDescriptorPool(dev, p.pool, nil)
	}
	if p.setLayout != nil {
		vk.DestroyDescriptorSetLayout(dev, p.setLayout, nil)
	}
	*p = pipeline{ctx: p.ctx}
}
