package vulkan

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// NewError converts a Vulkan result code into an error, nil on success.
func NewError(ret vk.Result) error {
	if ret == vk.Success {
		return nil
	}
	return fmt.Errorf("vulkan error: %s (%d)", vk.Error(ret).Error(), ret)
}
