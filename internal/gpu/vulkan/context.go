package vulkan

import (
	"errors"
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// Init points the Vulkan bindings at the loader glfw found. glfw.Init must
// have been called.
func Init() error {
	if !glfw.VulkanSupported() {
		return errors.New("vulkan: no loader found")
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	return vk.Init()
}

// Context owns the instance, the logical device and its compute queue.
type Context struct {
	Instance    vk.Instance
	Physical    vk.PhysicalDevice
	Device      vk.Device
	Queue       vk.Queue
	QueueFamily uint32
	MemProps    vk.PhysicalDeviceMemoryProperties
	Name        string
}

// NewContext creates an instance and a logical device with one compute
// queue on the first physical device that has one.
func NewContext(appName string) (*Context, error) {
	c := &Context{}
	var inst vk.Instance
	err := NewError(vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(appName),
			PEngineName:        "voxel-terrain\x00",
		},
	}, nil, &inst))
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	c.Instance = inst
	if err := vk.InitInstance(inst); err != nil {
		c.Destroy()
		return nil, fmt.Errorf("init instance: %w", err)
	}

	if err := c.pickDevice(); err != nil {
		c.Destroy()
		return nil, err
	}

	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: c.QueueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
	var device vk.Device
	err = NewError(vk.CreateDevice(c.Physical, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: uint32(len(queueInfos)),
		PQueueCreateInfos:    queueInfos,
	}, nil, &device))
	if err != nil {
		c.Destroy()
		return nil, fmt.Errorf("create device: %w", err)
	}
	c.Device = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, c.QueueFamily, 0, &queue)
	c.Queue = queue
	return c, nil
}

func (c *Context) pickDevice() error {
	var count uint32
	if err := NewError(vk.EnumeratePhysicalDevices(c.Instance, &count, nil)); err != nil {
		return fmt.Errorf("enumerate physical devices: %w", err)
	}
	if count == 0 {
		return errors.New("vulkan: no physical devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	if err := NewError(vk.EnumeratePhysicalDevices(c.Instance, &count, devices)); err != nil {
		return fmt.Errorf("enumerate physical devices: %w", err)
	}

	for _, pd := range devices {
		family, ok := computeFamily(pd)
		if !ok {
			continue
		}
		c.Physical = pd
		c.QueueFamily = family

		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()
		c.Name = vk.ToString(props.DeviceName[:])

		vk.GetPhysicalDeviceMemoryProperties(pd, &c.MemProps)
		c.MemProps.Deref()
		return nil
	}
	return errors.New("vulkan: no device with a compute queue")
}

// computeFamily returns the first queue family with compute support.
// Compute families accept transfer commands too.
func computeFamily(pd vk.PhysicalDevice) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, nil)
	props := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &count, props)
	for i := range props {
		props[i].Deref()
		if props[i].QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			return uint32(i), true
		}
	}
	return 0, false
}

// Destroy waits for the device to idle and tears everything down.
func (c *Context) Destroy() {
	if c.Device != nil {
		vk.DeviceWaitIdle(c.Device)
		vk.DestroyDevice(c.Device, nil)
		c.Device = nil
	}
	if c.Instance != nil {
		vk.DestroyInstance(c.Instance, nil)
		c.Instance = nil
	}
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}
